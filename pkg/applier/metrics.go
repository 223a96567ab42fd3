package applier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/orneryd/nornicapply/pkg/command"
)

// Metrics holds the prometheus collectors shared by every MetricsHandler of
// one engine. Register them once; handlers are created per transaction.
type Metrics struct {
	Commands     *prometheus.CounterVec
	Transactions prometheus.Counter
}

// NewMetrics registers the applier collectors with reg under namespace.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "applier",
			Name:      "commands_total",
			Help:      "Commands visited by the transaction applier, by command kind.",
		}, []string{"kind"}),
		Transactions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "applier",
			Name:      "transactions_total",
			Help:      "Transactions committed by the transaction applier.",
		}),
	}
}

// MetricsHandler counts every visited command by kind and every committed
// transaction. It never vetoes.
//
// Register it first: commit runs in reverse order and stops at the first
// failure, so its Apply only runs once every other handler has committed.
type MetricsHandler struct {
	metrics *Metrics
}

// NewMetricsHandler creates a handler reporting into m.
func NewMetricsHandler(m *Metrics) *MetricsHandler {
	return &MetricsHandler{metrics: m}
}

func (h *MetricsHandler) observe(kind command.Kind) (bool, error) {
	h.metrics.Commands.WithLabelValues(kind.String()).Inc()
	return true, nil
}

func (h *MetricsHandler) VisitNodeCommand(c *command.NodeCommand) (bool, error) {
	return h.observe(c.Kind())
}

func (h *MetricsHandler) VisitRelationshipCommand(c *command.RelationshipCommand) (bool, error) {
	return h.observe(c.Kind())
}

func (h *MetricsHandler) VisitRelationshipGroupCommand(c *command.RelationshipGroupCommand) (bool, error) {
	return h.observe(c.Kind())
}

func (h *MetricsHandler) VisitPropertyCommand(c *command.PropertyCommand) (bool, error) {
	return h.observe(c.Kind())
}

func (h *MetricsHandler) VisitPropertyKeyTokenCommand(c *command.PropertyKeyTokenCommand) (bool, error) {
	return h.observe(c.Kind())
}

func (h *MetricsHandler) VisitRelationshipTypeTokenCommand(c *command.RelationshipTypeTokenCommand) (bool, error) {
	return h.observe(c.Kind())
}

func (h *MetricsHandler) VisitLabelTokenCommand(c *command.LabelTokenCommand) (bool, error) {
	return h.observe(c.Kind())
}

func (h *MetricsHandler) VisitSchemaRuleCommand(c *command.SchemaRuleCommand) (bool, error) {
	return h.observe(c.Kind())
}

func (h *MetricsHandler) VisitNeoStoreCommand(c *command.NeoStoreCommand) (bool, error) {
	return h.observe(c.Kind())
}

func (h *MetricsHandler) VisitIndexAddNodeCommand(c *command.IndexAddNodeCommand) (bool, error) {
	return h.observe(c.Kind())
}

func (h *MetricsHandler) VisitIndexAddRelationshipCommand(c *command.IndexAddRelationshipCommand) (bool, error) {
	return h.observe(c.Kind())
}

func (h *MetricsHandler) VisitIndexCreateCommand(c *command.IndexCreateCommand) (bool, error) {
	return h.observe(c.Kind())
}

func (h *MetricsHandler) VisitIndexDeleteCommand(c *command.IndexDeleteCommand) (bool, error) {
	return h.observe(c.Kind())
}

func (h *MetricsHandler) VisitIndexRemoveCommand(c *command.IndexRemoveCommand) (bool, error) {
	return h.observe(c.Kind())
}

func (h *MetricsHandler) VisitIndexDefineCommand(c *command.IndexDefineCommand) (bool, error) {
	return h.observe(c.Kind())
}

// Apply counts the transaction.
func (h *MetricsHandler) Apply() error {
	h.metrics.Transactions.Inc()
	return nil
}

func (h *MetricsHandler) Close() error { return nil }

var _ command.Handler = (*MetricsHandler)(nil)
