package pagi

import (
	"crypto/tls"

	"golang.org/x/crypto/acme/autocert"
)

// buildTLSConfig assembles the effective `*tls.Config` for this server from
// TLSConfig, TLSCertFile/TLSKeyFile, and ACME, mirroring `air.Air.Serve`'s
// TLS-assembly block. It returns nil when TLS is not configured at all.
func (s *Server) buildTLSConfig() (*tls.Config, error) {
	var tlsConfig *tls.Config
	if s.TLSConfig != nil {
		tlsConfig = s.TLSConfig.Clone()
	}

	if s.TLSCertFile != "" && s.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.TLSCertFile, s.TLSKeyFile)
		if err != nil {
			return nil, err
		}
		if tlsConfig == nil {
			tlsConfig = &tls.Config{}
		}
		tlsConfig.Certificates = append(tlsConfig.Certificates, cert)
	}

	if s.ACMEEnabled {
		acm := &autocert.Manager{
			Prompt: autocert.AcceptTOS,
			Cache:  autocert.DirCache(s.ACMECertRoot),
		}
		if len(s.ACMEHostWhitelist) > 0 {
			acm.HostPolicy = autocert.HostWhitelist(s.ACMEHostWhitelist...)
		}

		if tlsConfig == nil {
			tlsConfig = &tls.Config{}
		}

		getCertificate := tlsConfig.GetCertificate
		tlsConfig.GetCertificate = func(chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
			if getCertificate != nil {
				if c, err := getCertificate(chi); err == nil && c != nil {
					return c, nil
				}
			}
			return acm.GetCertificate(chi)
		}

		tlsConfig.NextProtos = appendMissing(tlsConfig.NextProtos, acm.TLSConfig().NextProtos...)
	}

	if tlsConfig != nil {
		tlsConfig.NextProtos = appendMissing(tlsConfig.NextProtos, "h2", "http/1.1")
	}

	return tlsConfig, nil
}

// appendMissing appends every value of add not already present in base.
func appendMissing(base []string, add ...string) []string {
	for _, v := range add {
		found := false
		for _, b := range base {
			if b == v {
				found = true
				break
			}
		}
		if !found {
			base = append(base, v)
		}
	}
	return base
}
