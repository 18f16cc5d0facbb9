// Package metrics exposes prometheus instruments for the ledger.
package metrics

import (
	logging "github.com/ipfs/go-log"
	"github.com/prometheus/client_golang/prometheus"
)

var log = logging.Logger("metrics")

var deploysCounter prometheus.Counter
var transfersCounter prometheus.Counter
var renunciationsCounter prometheus.Counter
var unauthorizedCounter prometheus.Counter
var loadedEntitiesGauge prometheus.Gauge

func init() {
	deploysCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quorumcontrol",
		Subsystem: "ownable",
		Name:      "total_deploys",
		Help:      "Total number of owned entities created.",
	})
	if err := prometheus.Register(deploysCounter); err != nil {
		log.Errorf("failed to register deploys counter: %v", err)
	}

	transfersCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quorumcontrol",
		Subsystem: "ownable",
		Name:      "total_transfers",
		Help:      "Total number of successful ownership transfers, renunciations included.",
	})
	if err := prometheus.Register(transfersCounter); err != nil {
		log.Errorf("failed to register transfers counter: %v", err)
	}

	renunciationsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quorumcontrol",
		Subsystem: "ownable",
		Name:      "total_renunciations",
		Help:      "Total number of entities whose ownership was renounced.",
	})
	if err := prometheus.Register(renunciationsCounter); err != nil {
		log.Errorf("failed to register renunciations counter: %v", err)
	}

	unauthorizedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quorumcontrol",
		Subsystem: "ownable",
		Name:      "total_unauthorized",
		Help:      "Total number of transfers rejected because the caller was not the owner.",
	})
	if err := prometheus.Register(unauthorizedCounter); err != nil {
		log.Errorf("failed to register unauthorized counter: %v", err)
	}

	loadedEntitiesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quorumcontrol",
		Subsystem: "ownable",
		Name:      "loaded_entities",
		Help:      "Number of registries held in the ledger cache.",
	})
	if err := prometheus.Register(loadedEntitiesGauge); err != nil {
		log.Errorf("failed to register loaded entities gauge: %v", err)
	}
}

// IncDeploys increases the count of created entities.
func IncDeploys() {
	deploysCounter.Inc()
}

// IncTransfers increases the count of successful transfers.
func IncTransfers() {
	transfersCounter.Inc()
}

func IncRenunciations() {
	renunciationsCounter.Inc()
}

// IncUnauthorized increases the count of rejected transfers.
func IncUnauthorized() {
	unauthorizedCounter.Inc()
}

func SetLoadedEntities(num int) {
	loadedEntitiesGauge.Set(float64(num))
}
