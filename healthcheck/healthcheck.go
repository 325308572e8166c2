package healthcheck

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/opentrail/trailship/shipper"
)

type status struct {
	State      string `json:"state"`
	QueueDepth int    `json:"queue_depth"`
	Delivered  uint64 `json:"delivered"`
	Dropped    uint64 `json:"dropped"`
}

// Handler returns the health and status endpoints for a client.
func Handler(client *shipper.Client) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("Healthy!\n"))
	})
	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Add("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status{
			State:      client.State().String(),
			QueueDepth: client.Depth(),
			Delivered:  client.Delivered(),
			Dropped:    client.Dropped(),
		})
	})
	return r
}
