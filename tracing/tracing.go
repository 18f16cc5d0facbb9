// Package tracing configures the global opentracing tracer.
package tracing

import (
	"context"
	"fmt"
	"io"
	"sync"

	logging "github.com/ipfs/go-log"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"go.elastic.co/apm/module/apmot"
)

var log = logging.Logger("tracing")

type System int

const (
	NoTracing System = iota
	JaegerTracing
	ElasticTracing
)

// ParseSystem maps a config value onto a System; "" means no tracing.
func ParseSystem(name string) (System, error) {
	switch name {
	case "":
		return NoTracing, nil
	case "jaeger":
		return JaegerTracing, nil
	case "elastic":
		return ElasticTracing, nil
	default:
		return NoTracing, fmt.Errorf("only 'jaeger' and 'elastic' are supported for tracing")
	}
}

var (
	lock         sync.Mutex
	enabled      bool
	jaegerCloser io.Closer
)

func Enabled() bool {
	lock.Lock()
	defer lock.Unlock()
	return enabled
}

// Start installs the global tracer for system. NoTracing leaves the
// opentracing no-op tracer in place.
func Start(system System, serviceName string) error {
	switch system {
	case JaegerTracing:
		return startJaeger(serviceName)
	case ElasticTracing:
		startElastic()
	}
	return nil
}

func startElastic() {
	lock.Lock()
	defer lock.Unlock()
	enabled = true
	opentracing.SetGlobalTracer(apmot.New())
}

func startJaeger(serviceName string) error {
	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		// parsing errors might happen here, such as when we get a string where we expect a number
		return fmt.Errorf("could not parse Jaeger env vars: %v", err)
	}

	cfg.ServiceName = serviceName
	cfg.Sampler.Type = jaeger.SamplerTypeConst
	cfg.Sampler.Param = 1

	tracer, closer, err := cfg.NewTracer()
	if err != nil {
		return fmt.Errorf("could not initialize jaeger tracer: %v", err)
	}

	lock.Lock()
	defer lock.Unlock()
	enabled = true
	jaegerCloser = closer
	opentracing.SetGlobalTracer(tracer)
	return nil
}

// Stop flushes and closes jaeger if it was started.
func Stop() {
	lock.Lock()
	defer lock.Unlock()
	enabled = false
	if jaegerCloser != nil {
		if err := jaegerCloser.Close(); err != nil {
			log.Warningf("error closing jaeger: %v", err)
		}
		jaegerCloser = nil
	}
}

// StartSpan starts a span as a child of any span already in ctx.
func StartSpan(ctx context.Context, name string) (opentracing.Span, context.Context) {
	return opentracing.StartSpanFromContext(ctx, name)
}

// FinishWithError tags span as failed when err is non-nil and finishes it.
func FinishWithError(span opentracing.Span, err error) {
	if err != nil {
		ext.Error.Set(span, true)
		span.SetTag("error.message", err.Error())
	}
	span.Finish()
}
