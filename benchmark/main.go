package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	target   = flag.String("url", "http://localhost:8123/api/v1/query", "Query endpoint")
	dataset  = flag.String("dataset", "bench", "Catalog dataset to query")
	clients  = flag.Int("clients", 8, "Concurrent clients")
	duration = flag.Duration("duration", time.Minute, "Benchmark duration")
	listen   = flag.String("metrics", ":9090", "Metrics listen address")
)

var labels = prometheus.Labels{"job": "gigaview_benchmark"}

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:        "query_request_duration_seconds",
	Help:        "Duration of query requests in seconds",
	ConstLabels: labels,
	Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
}, []string{"status"})

var totalRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name:        "total_query_requests",
	Help:        "Query requests by HTTP status",
	ConstLabels: labels,
}, []string{"status"})

func main() {
	flag.Parse()
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(*listen, nil); err != nil {
			panic(err)
		}
	}()
	ok, overloaded, failed := runBenchmark(*clients, *duration)
	fmt.Printf("ok: %d, overloaded (503): %d, failed: %d\n", ok, overloaded, failed)
}

// body varies the page so the engine cannot serve a single plan over and over.
func body(i int) []byte {
	return []byte(fmt.Sprintf(`{"dataset":%q,"limit":100,"offset":%d}`, *dataset, (i%100)*100))
}

func runBenchmark(clients int, timeout time.Duration) (ok, overloaded, failed int64) {
	var (
		wg      sync.WaitGroup
		working int32 = 1
	)
	for c := 0; c < clients; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for i := c; atomic.LoadInt32(&working) == 1; i += clients {
				start := time.Now()
				res, err := http.Post(*target, "application/json", bytes.NewReader(body(i)))
				if err != nil {
					atomic.AddInt64(&failed, 1)
					totalRequests.WithLabelValues("error").Inc()
					time.Sleep(100 * time.Millisecond)
					continue
				}
				io.Copy(io.Discard, res.Body)
				res.Body.Close()
				status := strconv.Itoa(res.StatusCode)
				requestDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
				totalRequests.WithLabelValues(status).Inc()
				switch res.StatusCode {
				case http.StatusOK:
					atomic.AddInt64(&ok, 1)
				case http.StatusServiceUnavailable:
					atomic.AddInt64(&overloaded, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
			}
		}(c)
	}
	time.Sleep(timeout)
	atomic.StoreInt32(&working, 0)
	wg.Wait()
	return
}
