package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"
	"time"

	"RetailBackOffice/pkg/config"
	apperrors "RetailBackOffice/pkg/errors"
	"RetailBackOffice/pkg/httpx"
	"RetailBackOffice/pkg/logger"
	"RetailBackOffice/services/api-gateway/internal/balancer"
)

var (
	// ErrNoRoute ни один префикс не подходит к пути
	ErrNoRoute = apperrors.New(apperrors.ErrNotFound, "route not found").WithReason("NO_ROUTE")
	// ErrUpstreamUnavailable нет доступного upstream-а или он не ответил
	ErrUpstreamUnavailable = apperrors.New(apperrors.ErrUnavailable, "upstream unavailable").WithReason("UPSTREAM_UNAVAILABLE")
)

type upstreamKey struct{}

// route группа upstream-ов за префиксом
type route struct {
	prefix      string
	stripPrefix bool
	pool        *balancer.RoundRobin
	checker     *balancer.HealthChecker
	handler     http.Handler
}

// Router проксирует запросы по самому длинному совпавшему префиксу.
// Заголовок Authorization передается upstream-у без изменений.
type Router struct {
	routes []*route
	proxy  *httputil.ReverseProxy
	logger logger.Logger
}

// NewRouter строит маршрутизатор. limited применяется к маршрутам с rate_limited.
func NewRouter(routes []config.RouteConfig, limited httpx.Middleware, log logger.Logger) (*Router, error) {
	r := &Router{logger: log}
	r.proxy = &httputil.ReverseProxy{
		Rewrite:      r.rewrite,
		ErrorHandler: r.proxyError,
	}

	for _, rc := range routes {
		instances := make([]*balancer.Instance, 0, len(rc.Upstreams))
		for _, raw := range rc.Upstreams {
			target, err := url.Parse(raw)
			if err != nil || target.Scheme == "" || target.Host == "" {
				return nil, fmt.Errorf("invalid upstream %q for route %s", raw, rc.Prefix)
			}
			instances = append(instances, balancer.NewInstance(target))
		}

		rt := &route{
			prefix:      rc.Prefix,
			stripPrefix: rc.StripPrefix,
			pool:        balancer.NewRoundRobin(instances, log),
		}
		if rc.HealthPath != "" {
			rt.checker = balancer.NewHealthChecker(instances, rc.HealthPath, 5*time.Second, log)
		}
		var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			r.forward(w, req, rt)
		})
		if rc.RateLimited && limited != nil {
			h = limited(h)
		}
		rt.handler = h
		r.routes = append(r.routes, rt)
	}

	sort.SliceStable(r.routes, func(i, j int) bool {
		return len(r.routes[i].prefix) > len(r.routes[j].prefix)
	})
	return r, nil
}

// StartHealthChecks запускает проверки upstream-ов до отмены контекста
func (r *Router) StartHealthChecks(ctx context.Context) {
	for _, rt := range r.routes {
		if rt.checker != nil {
			go rt.checker.Run(ctx)
		}
	}
}

// ServeHTTP реализует http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	for _, rt := range r.routes {
		if strings.HasPrefix(req.URL.Path, rt.prefix) {
			rt.handler.ServeHTTP(w, req)
			return
		}
	}
	apperrors.WriteError(w, ErrNoRoute.WithDetails(req.URL.Path))
}

func (r *Router) forward(w http.ResponseWriter, req *http.Request, rt *route) {
	instance := rt.pool.Select()
	if instance == nil {
		apperrors.WriteError(w, ErrUpstreamUnavailable.WithDetails(rt.prefix))
		return
	}
	release := instance.Acquire()
	defer release()

	if rt.stripPrefix {
		req = stripPrefix(req, rt.prefix)
	}
	ctx := context.WithValue(req.Context(), upstreamKey{}, instance)
	r.proxy.ServeHTTP(w, req.WithContext(ctx))
}

func (r *Router) rewrite(pr *httputil.ProxyRequest) {
	instance := pr.In.Context().Value(upstreamKey{}).(*balancer.Instance)
	pr.SetURL(instance.URL)
	pr.SetXForwarded()
	pr.Out.Host = instance.URL.Host
}

func (r *Router) proxyError(w http.ResponseWriter, req *http.Request, err error) {
	address := ""
	if instance, ok := req.Context().Value(upstreamKey{}).(*balancer.Instance); ok {
		address = instance.Address()
	}
	r.logger.Error("Upstream request failed",
		logger.String("upstream", address),
		logger.String("path", req.URL.Path),
		logger.Error(err),
		logger.CtxField(req.Context()))
	apperrors.WriteError(w, ErrUpstreamUnavailable.WithCause(err))
}

// stripPrefix возвращает копию запроса с путем без префикса маршрута
func stripPrefix(req *http.Request, prefix string) *http.Request {
	trimmed := strings.TrimPrefix(req.URL.Path, strings.TrimRight(prefix, "/"))
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	out := req.Clone(req.Context())
	out.URL.Path = trimmed
	out.URL.RawPath = ""
	return out
}
