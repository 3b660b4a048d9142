package pagi

import "sync"

// pools bundles every `sync.Pool` the server keeps to stay allocation-light
// on the hot path, grounded on `air.Pool`'s one-pool-per-type design.
type pools struct {
	requestPool  *sync.Pool
	responsePool *sync.Pool
	headersPool  *sync.Pool
	bufferPool   *sync.Pool
}

// newPools returns a new, populated `pools`.
func newPools() *pools {
	return &pools{
		requestPool: &sync.Pool{
			New: func() interface{} { return &Request{} },
		},
		responsePool: &sync.Pool{
			New: func() interface{} { return &Response{} },
		},
		headersPool: &sync.Pool{
			New: func() interface{} { return make(Headers, 0, 16) },
		},
		bufferPool: &sync.Pool{
			New: func() interface{} { return make([]byte, 0, 4096) },
		},
	}
}

// getRequest returns an empty `Request` from p.
func (p *pools) getRequest() *Request {
	return p.requestPool.Get().(*Request)
}

// putRequest resets r and returns it to p.
func (p *pools) putRequest(r *Request) {
	r.reset()
	p.requestPool.Put(r)
}

// getResponse returns an empty `Response` from p.
func (p *pools) getResponse() *Response {
	return p.responsePool.Get().(*Response)
}

// putResponse resets r and returns it to p.
func (p *pools) putResponse(r *Response) {
	r.reset()
	p.responsePool.Put(r)
}

// getHeaders returns an empty `Headers` from p.
func (p *pools) getHeaders() Headers {
	return p.headersPool.Get().(Headers)[:0]
}

// putHeaders returns h to p.
func (p *pools) putHeaders(h Headers) {
	p.headersPool.Put(h)
}

// getBuffer returns an empty []byte of at least the pooled capacity.
func (p *pools) getBuffer() []byte {
	return p.bufferPool.Get().([]byte)[:0]
}

// putBuffer returns b to p.
func (p *pools) putBuffer(b []byte) {
	p.bufferPool.Put(b)
}
