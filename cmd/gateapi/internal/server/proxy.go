package server

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/sirupsen/logrus"

	gatemiddleware "github.com/zgramming/cmsgate/cmd/gateapi/internal/middleware"
)

// NewUpstreamProxy forwards allowed requests to the SPA upstream.
func NewUpstreamProxy(rawURL string, log logrus.FieldLogger) (http.Handler, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.WithError(err).WithField("path", r.URL.Path).Error("upstream request failed")
			gatemiddleware.WriteError(w, http.StatusBadGateway, "upstream unavailable")
		},
	}
	return proxy, nil
}
