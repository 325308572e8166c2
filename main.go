package main

import (
	"bufio"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opentrail/trailship/cfg"
	"github.com/opentrail/trailship/framing"
	"github.com/opentrail/trailship/healthcheck"
	"github.com/opentrail/trailship/queue"
	"github.com/opentrail/trailship/record"
	"github.com/opentrail/trailship/shipper"
)

var debugMode bool

func debug(v ...interface{}) {
	if debugMode {
		log.Println(v...)
	}
}

func assert(err error, context string) {
	if err != nil {
		log.Fatal(context+": ", err)
	}
}

func clientConfig() shipper.Config {
	addr := cfg.GetEnvDefault("COLLECTOR_ADDR", "")
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}
	if addr == "" {
		log.Fatal("usage: trailship <collector-addr> (or set COLLECTOR_ADDR)")
	}
	return shipper.Config{
		Address:        addr,
		Transport:      cfg.GetEnvDefault("TRANSPORT", "tcp"),
		Framing:        cfg.GetEnvDefault("FRAMING", framing.Plain),
		QueueCapacity:  cfg.GetEnvInt("QUEUE_CAPACITY", 1024),
		Policy:         queue.Policy(cfg.GetEnvDefault("QUEUE_POLICY", string(queue.Block))),
		RetryCap:       cfg.GetEnvInt("RETRY_CAP", 3),
		BackoffBase:    cfg.GetEnvDuration("BACKOFF_BASE", 200*time.Millisecond),
		BackoffCeiling: cfg.GetEnvDuration("BACKOFF_CEILING", 30*time.Second),
		FramingOptions: framing.Options{
			Policy:   framing.Policy(cfg.GetEnvDefault("ESCAPE_POLICY", string(framing.EscapePolicy))),
			Hostname: cfg.GetEnvDefault("SYSLOG_HOSTNAME", ""),
			Facility: cfg.GetEnvInt("SYSLOG_FACILITY", 1),
			SDID:     cfg.GetEnvDefault("SYSLOG_STRUCTURED_DATA_ID", ""),
		},
		OnFailure: func(rec record.Record, err error) {
			log.Println("trailship: dropped record from", rec.Source+":", err)
		},
	}
}

// ship reads LF-delimited lines from stdin and submits them. Lines in the
// plain timestamp|severity|source|message format keep their fields; anything
// else ships as-is at INFO with the local hostname as source.
func ship(client *shipper.Client, done chan<- struct{}) {
	defer close(done)
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "localhost"
	}
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, err := framing.DecodePlain(line)
		if err != nil {
			rec = record.Record{
				Timestamp: time.Now(),
				Severity:  record.Info,
				Source:    hostname,
				Message:   line,
			}
		}
		if err := client.Submit(rec); err != nil {
			log.Println("trailship:", err)
			return
		}
	}
}

func main() {
	debugMode = os.Getenv("DEBUG") != ""
	client, err := shipper.New(clientConfig())
	assert(err, "trailship")

	bindAddress := cfg.GetEnvDefault("HTTP_BIND_ADDRESS", "0.0.0.0")
	port := cfg.GetEnvDefault("PORT", cfg.GetEnvDefault("HTTP_PORT", "8080"))
	http.Handle("/", healthcheck.Handler(client))
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		debug("http listening on", bindAddress+":"+port)
		log.Println("http:", http.ListenAndServe(bindAddress+":"+port, nil))
	}()

	done := make(chan struct{})
	go ship(client, done)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case s := <-sig:
		debug("caught", s)
	case <-done:
	}

	delivered, pending, err := client.Flush(cfg.GetEnvDuration("FLUSH_TIMEOUT", 5*time.Second))
	debug("flushed:", delivered, "delivered,", pending, "pending")
	if err != nil {
		log.Println("trailship:", err)
	}
	client.Close()
}
