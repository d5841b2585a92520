// Package orchestrator wires the chain together: it routes material
// between stages, drives agent operations on a shared clock, and parks
// a decision request wherever an operator input is needed before work
// can continue.
package orchestrator

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/talgya/chainflow/internal/agent"
	"github.com/talgya/chainflow/internal/decision"
	"github.com/talgya/chainflow/internal/entropy"
	"github.com/talgya/chainflow/internal/job"
	"github.com/talgya/chainflow/internal/report"
	"github.com/talgya/chainflow/internal/shipment"
	"github.com/talgya/chainflow/internal/trace"
)

// Routing maps a material to the downstream agent that receives it at
// each hop. Registering a material twice overwrites the earlier route.
type Routing struct {
	// ore -> processing agent
	Processing map[string]string
	// processed material -> manufacturing agent
	Manufacturing map[string]string
	// finished product -> distribution agent
	Distribution map[string]string
	// finished product -> retail agent
	Retail map[string]string
}

// NewRouting returns an empty routing table.
func NewRouting() *Routing {
	return &Routing{
		Processing:    make(map[string]string),
		Manufacturing: make(map[string]string),
		Distribution:  make(map[string]string),
		Retail:        make(map[string]string),
	}
}

// Orchestrator owns the agents, the routing table, active material
// traces and the pending decision requests. All methods are safe for
// concurrent use.
type Orchestrator struct {
	mu sync.Mutex

	now time.Time
	rng *entropy.Source

	routing *Routing

	mines         map[string]*agent.Mining
	processors    map[string]*agent.Processing
	manufacturers map[string]*agent.Manufacturing
	distributors  map[string]*agent.Distribution
	retailers     map[string]*agent.Retail

	traces     map[string]*trace.Trace
	traceOrder []string

	requests     map[string]*decision.Request
	requestOrder []string

	decisions []report.DecisionRecord
}

// New creates an orchestrator starting its clock at start.
func New(start time.Time, routing *Routing, rng *entropy.Source) *Orchestrator {
	if routing == nil {
		routing = NewRouting()
	}
	return &Orchestrator{
		now:           start,
		rng:           rng,
		routing:       routing,
		mines:         make(map[string]*agent.Mining),
		processors:    make(map[string]*agent.Processing),
		manufacturers: make(map[string]*agent.Manufacturing),
		distributors:  make(map[string]*agent.Distribution),
		retailers:     make(map[string]*agent.Retail),
		traces:        make(map[string]*trace.Trace),
		requests:      make(map[string]*decision.Request),
	}
}

// Now returns the orchestrator clock. The clock only moves when work
// does: delivering a shipment or finishing a job advances it to the
// moment the work completed.
func (o *Orchestrator) Now() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *Orchestrator) RegisterMining(m *agent.Mining) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mines[m.ID] = m
}

func (o *Orchestrator) RegisterProcessing(p *agent.Processing) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.processors[p.ID] = p
}

func (o *Orchestrator) RegisterManufacturing(m *agent.Manufacturing) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.manufacturers[m.ID] = m
}

func (o *Orchestrator) RegisterDistribution(d *agent.Distribution) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.distributors[d.ID] = d
}

func (o *Orchestrator) RegisterRetail(r *agent.Retail) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retailers[r.ID] = r
}

// InjectRawMaterials starts a new material flow: the named mine
// extracts the ore, the load is shipped and delivered to the routed
// processing agent, and a processing decision request is parked for the
// operator. Returns the trace following the material.
func (o *Orchestrator) InjectRawMaterials(mineID, ore string, quantity float64) (*trace.Trace, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	mine, ok := o.mines[mineID]
	if !ok {
		return nil, fmt.Errorf("no mining agent registered as %q", mineID)
	}
	procID, ok := o.routing.Processing[ore]
	if !ok {
		return nil, fmt.Errorf("no processing route for %s", ore)
	}
	proc, ok := o.processors[procID]
	if !ok {
		return nil, fmt.Errorf("route for %s names unregistered agent %q", ore, procID)
	}

	res, err := mine.Extract(o.now, ore, quantity)
	if err != nil {
		return nil, err
	}

	t := trace.New(o.now, res.Material, res.Quantity, mineID)
	o.traces[t.ID] = t
	o.traceOrder = append(o.traceOrder, t.ID)
	t.AddStep(o.now, string(agent.StageMining), mineID, "extracted", map[string]any{
		"quantity":           res.Quantity,
		"quality":            res.Quality,
		"cost_per_ton":       res.CostPerTon,
		"remaining_reserves": res.RemainingReserves,
	})

	s, err := mine.Ship(o.now, ore, res.Quantity, procID)
	if err != nil {
		return nil, fmt.Errorf("ship from %s: %w", mineID, err)
	}
	mine.DispatchAll(o.now)
	t.AddStep(o.now, string(agent.StageMining), mineID, "dispatched", map[string]any{
		"shipment":    s.ID,
		"destination": procID,
		"eta":         s.EstimatedArrival,
	})

	accepted, err := o.deliverToProcessing(mine, proc, s)
	if err != nil {
		return nil, err
	}
	t.Transform(res.Material, accepted)
	t.AddStep(o.now, string(agent.StageProcessing), procID, "received", map[string]any{
		"shipment": s.ID,
		"accepted": accepted,
		"rejected": s.Quantity - accepted,
	})

	schema, err := proc.DecisionSchema(res.Material, proc.Raw.Quantity(res.Material))
	if err != nil {
		return nil, err
	}
	req := decision.NewRequest(o.now, t.ID, procID, string(agent.StageProcessing),
		"process_material", res.Material, accepted, schema)
	o.addRequest(req)

	slog.Info("raw materials injected",
		"mine", mineID, "ore", ore, "quantity", res.Quantity,
		"trace", t.ID, "request", req.ID)
	return t, nil
}

func (o *Orchestrator) deliverToProcessing(mine *agent.Mining, proc *agent.Processing, s *shipment.Shipment) (float64, error) {
	ledger, err := proc.Intake(s.Material)
	if err != nil {
		return 0, err
	}
	if s.EstimatedArrival.After(o.now) {
		o.now = s.EstimatedArrival
	}
	accepted, err := shipment.Deliver(s, mine.Store, ledger)
	if _, cerr := mine.Outbound.Complete(s.ID, o.now); cerr != nil {
		return 0, cerr
	}
	if err != nil {
		return 0, err
	}
	proc.RecordQuality(s.Material, s.Quality)
	return accepted, nil
}

func (o *Orchestrator) addRequest(req *decision.Request) {
	o.requests[req.ID] = req
	o.requestOrder = append(o.requestOrder, req.ID)
}

func (o *Orchestrator) removeRequest(id string) {
	delete(o.requests, id)
	for i, rid := range o.requestOrder {
		if rid == id {
			o.requestOrder = append(o.requestOrder[:i], o.requestOrder[i+1:]...)
			break
		}
	}
}

// PendingRequests returns the open decision requests in creation order.
func (o *Orchestrator) PendingRequests() []*decision.Request {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*decision.Request, 0, len(o.requestOrder))
	for _, id := range o.requestOrder {
		out = append(out, o.requests[id])
	}
	return out
}

// Request returns one pending request by ID.
func (o *Orchestrator) Request(id string) (*decision.Request, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	req, ok := o.requests[id]
	return req, ok
}

// ProcessRequest resolves a pending decision with the operator's
// values, runs the stage operation, and moves the material one hop
// down the chain. Validation failures leave the request pending. A
// batch that cannot move downstream stalls in place; the decision
// still completes, since the stage operation already ran.
func (o *Orchestrator) ProcessRequest(id string, values decision.Values) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	req, ok := o.requests[id]
	if !ok {
		return fmt.Errorf("no pending request %q", id)
	}
	vals, err := decision.Validate(req.Schema, values)
	if err != nil {
		return err
	}
	t, ok := o.traces[req.TraceID]
	if !ok {
		return fmt.Errorf("request %s references unknown trace %s", id, req.TraceID)
	}

	switch req.Stage {
	case string(agent.StageProcessing):
		err = o.runProcessing(req, t, vals)
	case string(agent.StageManufacturing):
		err = o.runManufacturing(req, t, vals)
	case string(agent.StageRetail):
		err = o.runRetail(req, t, vals)
	default:
		err = fmt.Errorf("request %s has unroutable stage %q", id, req.Stage)
	}
	if err != nil {
		return err
	}

	req.Status = decision.StatusCompleted
	o.decisions = append(o.decisions, report.DecisionRecord{
		RequestID:  req.ID,
		TraceID:    req.TraceID,
		AgentID:    req.AgentID,
		Operation:  req.Operation,
		Values:     vals,
		ResolvedAt: o.now,
	})
	o.removeRequest(id)
	return nil
}

func (o *Orchestrator) runProcessing(req *decision.Request, t *trace.Trace, vals decision.Values) error {
	proc, ok := o.processors[req.AgentID]
	if !ok {
		return fmt.Errorf("request %s names unregistered agent %q", req.ID, req.AgentID)
	}

	j, err := proc.Transform(o.now, req.Material, vals)
	if err != nil {
		return err
	}
	done, err := o.runToCompletion(j, func(now time.Time) []*job.Job {
		return proc.RunOperations(now)
	})
	if err != nil {
		return err
	}

	t.Transform(done.ExpectedOutputMaterial, done.ActualOutputQuantity)
	t.AddStep(o.now, string(agent.StageProcessing), proc.ID, "processed", map[string]any{
		"job":      done.ID,
		"recipe":   done.Recipe.Name,
		"input":    done.BatchSize,
		"output":   done.ActualOutputQuantity,
		"quality":  done.ActualQuality,
		"duration": done.Duration.String(),
	})

	if err := o.forwardToManufacturing(t, proc, done); err != nil {
		o.stallFlow(t, string(agent.StageProcessing), proc.ID, err)
	}
	return nil
}

// stallFlow ends a flow that cannot move downstream. The batch stays
// in whichever ledger holds it and the stall is recorded on the trace;
// the resolved decision must not fail, or a retry would re-run a stage
// operation that already consumed its input.
func (o *Orchestrator) stallFlow(t *trace.Trace, stage, agentID string, err error) {
	t.AddStep(o.now, stage, agentID, "no_route", map[string]any{
		"reason": err.Error(),
	})
	slog.Warn("flow stalled", "trace", t.ID, "agent", agentID, "reason", err)
}

func (o *Orchestrator) forwardToManufacturing(t *trace.Trace, proc *agent.Processing, done *job.Job) error {
	material := done.ExpectedOutputMaterial
	manID, ok := o.routing.Manufacturing[material]
	if !ok {
		return fmt.Errorf("no manufacturing route for %s", material)
	}
	man, ok := o.manufacturers[manID]
	if !ok {
		return fmt.Errorf("route for %s names unregistered agent %q", material, manID)
	}

	s, err := proc.Ship(o.now, material, done.ActualOutputQuantity, manID)
	if err != nil {
		return fmt.Errorf("ship from %s: %w", proc.ID, err)
	}
	proc.DispatchAll(o.now)
	t.AddStep(o.now, string(agent.StageProcessing), proc.ID, "dispatched", map[string]any{
		"shipment":    s.ID,
		"destination": manID,
		"eta":         s.EstimatedArrival,
	})

	ledger, err := man.Intake(material)
	if err != nil {
		return err
	}
	if s.EstimatedArrival.After(o.now) {
		o.now = s.EstimatedArrival
	}
	accepted, err := shipment.Deliver(s, proc.Processed, ledger)
	if _, cerr := proc.Outbound.Complete(s.ID, o.now); cerr != nil {
		return cerr
	}
	if err != nil {
		return err
	}
	t.Transform(material, accepted)
	t.AddStep(o.now, string(agent.StageManufacturing), manID, "received", map[string]any{
		"shipment": s.ID,
		"accepted": accepted,
		"rejected": s.Quantity - accepted,
	})

	recipes := man.Recipes.ForInput(material)
	if len(recipes) == 0 {
		return fmt.Errorf("%s has no recipe for %s", manID, material)
	}
	schema, err := man.DecisionSchema(recipes[0], man.RawMaterials.Quantity(material))
	if err != nil {
		return err
	}
	req := decision.NewRequest(o.now, t.ID, manID, string(agent.StageManufacturing),
		"manufacture_product", material, accepted, schema)
	o.addRequest(req)
	return nil
}

func (o *Orchestrator) runManufacturing(req *decision.Request, t *trace.Trace, vals decision.Values) error {
	man, ok := o.manufacturers[req.AgentID]
	if !ok {
		return fmt.Errorf("request %s names unregistered agent %q", req.ID, req.AgentID)
	}
	recipes := man.Recipes.ForInput(req.Material)
	if len(recipes) == 0 {
		return fmt.Errorf("%s has no recipe for %s", man.ID, req.Material)
	}

	j, err := man.Manufacture(o.now, recipes[0], vals)
	if err != nil {
		return err
	}
	done, err := o.runToCompletion(j, func(now time.Time) []*job.Job {
		return man.RunOperations(now)
	})
	if err != nil {
		return err
	}

	if done.Status == job.StatusQCFailed {
		t.AddStep(o.now, string(agent.StageManufacturing), man.ID, "quality_control_failed", map[string]any{
			"job":      done.ID,
			"standard": done.QualityStandard,
			"qc_level": done.QCLevel,
		})
		slog.Warn("batch failed quality control, flow ends",
			"agent", man.ID, "job", done.ID, "trace", t.ID)
		return nil
	}

	t.Transform(done.ExpectedOutputMaterial, done.ActualOutputQuantity)
	t.AddStep(o.now, string(agent.StageManufacturing), man.ID, "manufactured", map[string]any{
		"job":      done.ID,
		"recipe":   done.Recipe.Name,
		"output":   done.ActualOutputQuantity,
		"quality":  done.ActualQuality,
		"standard": done.QualityStandard,
	})

	if err := o.forwardToRetail(t, man, done); err != nil {
		o.stallFlow(t, string(agent.StageManufacturing), man.ID, err)
	}
	return nil
}

// forwardToRetail pushes a finished batch through distribution and into
// the routed retail outlet, then parks the sale decision.
func (o *Orchestrator) forwardToRetail(t *trace.Trace, man *agent.Manufacturing, done *job.Job) error {
	product := done.ExpectedOutputMaterial
	distID, ok := o.routing.Distribution[product]
	if !ok {
		return fmt.Errorf("no distribution route for %s", product)
	}
	dist, ok := o.distributors[distID]
	if !ok {
		return fmt.Errorf("route for %s names unregistered agent %q", product, distID)
	}
	retailID, ok := o.routing.Retail[product]
	if !ok {
		return fmt.Errorf("no retail route for %s", product)
	}
	retail, ok := o.retailers[retailID]
	if !ok {
		return fmt.Errorf("route for %s names unregistered agent %q", product, retailID)
	}

	s, err := man.Ship(o.now, product, done.ActualOutputQuantity, distID)
	if err != nil {
		return fmt.Errorf("ship from %s: %w", man.ID, err)
	}
	man.DispatchAll(o.now)
	if s.EstimatedArrival.After(o.now) {
		o.now = s.EstimatedArrival
	}
	accepted, err := shipment.Deliver(s, man.FinishedGoods, dist.Warehouse)
	if _, cerr := man.Outbound.Complete(s.ID, o.now); cerr != nil {
		return cerr
	}
	if err != nil {
		return err
	}
	t.Transform(product, accepted)
	t.AddStep(o.now, string(agent.StageDistribution), distID, "warehoused", map[string]any{
		"shipment": s.ID,
		"accepted": accepted,
	})

	if len(dist.ShippingZones) == 0 {
		return fmt.Errorf("%s has no shipping zones", distID)
	}
	zone := dist.ShippingZones[0]
	order, err := dist.CreateOrder(o.now, product, accepted, retailID, zone)
	if err != nil {
		return err
	}
	dist.DispatchOrders(o.now)
	if order.Status != shipment.StatusDispatched {
		return fmt.Errorf("order %s stuck behind dispatch cap", order.ID)
	}
	t.AddStep(o.now, string(agent.StageDistribution), distID, "order_dispatched", map[string]any{
		"order": order.ID,
		"zone":  zone,
		"route": order.Route,
		"eta":   order.EstimatedArrival,
	})

	if order.EstimatedArrival.After(o.now) {
		o.now = order.EstimatedArrival
	}
	stocked, err := retail.Stock(product, order.Quantity)
	if refund := order.Quantity - stocked; refund > 0 {
		dist.Warehouse.Add(product, refund)
	}
	order.AcceptedQuantity = stocked
	if _, cerr := dist.CompleteOrder(order.ID, o.now); cerr != nil {
		return cerr
	}
	if err != nil {
		return err
	}
	t.Transform(product, stocked)
	t.AddStep(o.now, string(agent.StageRetail), retailID, "stocked", map[string]any{
		"order":    order.ID,
		"quantity": stocked,
	})

	req := decision.NewRequest(o.now, t.ID, retailID, string(agent.StageRetail),
		"sell_product", product, stocked, retail.DecisionSchema(product))
	o.addRequest(req)
	return nil
}

func (o *Orchestrator) runRetail(req *decision.Request, t *trace.Trace, vals decision.Values) error {
	retail, ok := o.retailers[req.AgentID]
	if !ok {
		return fmt.Errorf("request %s names unregistered agent %q", req.ID, req.AgentID)
	}
	if len(retail.CustomerZones) == 0 {
		return fmt.Errorf("%s has no customer zones", retail.ID)
	}
	zone := retail.CustomerZones[0]

	sale, err := retail.Sell(o.now, req.Material, req.Quantity, zone, vals)
	if err != nil {
		return err
	}
	t.AddStep(o.now, string(agent.StageRetail), retail.ID, "sold", map[string]any{
		"sale":           sale.ID,
		"quantity":       sale.Quantity,
		"unit_price":     sale.UnitPrice,
		"revenue":        sale.Revenue,
		"channel":        sale.Channel,
		"delivery_hours": sale.DeliveryHours,
	})
	return nil
}

// runToCompletion starts the queued job and advances the clock to its
// completion, returning the finished job.
func (o *Orchestrator) runToCompletion(j *job.Job, advance func(time.Time) []*job.Job) (*job.Job, error) {
	advance(o.now) // start the job
	if j.Status != job.StatusActive {
		return nil, fmt.Errorf("job %s did not start, line %q busy", j.ID, j.Recipe.RequiredLine)
	}
	o.now = j.StartedAt.Add(j.Duration)
	for _, done := range advance(o.now) {
		if done.ID == j.ID {
			return done, nil
		}
	}
	return nil, fmt.Errorf("job %s did not complete", j.ID)
}

// Traces returns every trace in creation order.
func (o *Orchestrator) Traces() []*trace.Trace {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*trace.Trace, 0, len(o.traceOrder))
	for _, id := range o.traceOrder {
		out = append(out, o.traces[id])
	}
	return out
}

// Trace returns one trace by ID.
func (o *Orchestrator) Trace(id string) (*trace.Trace, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.traces[id]
	return t, ok
}

// DecisionLog returns resolved decisions in resolution order.
func (o *Orchestrator) DecisionLog() []report.DecisionRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]report.DecisionRecord(nil), o.decisions...)
}

// Snapshot reports the state of every agent plus chain-wide totals.
func (o *Orchestrator) Snapshot() report.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := report.Snapshot{
		Time:            o.now,
		ActiveTraces:    len(o.traces),
		PendingRequests: len(o.requests),
	}
	for _, id := range sortedKeys(o.mines) {
		m := o.mines[id]
		snap.Agents = append(snap.Agents, report.AgentStatus{
			ID: m.ID, Name: m.Name, Stage: string(m.Stage),
			Capacity:           m.Store.Capacity(),
			Stored:             m.Store.Total(),
			Utilization:        m.Store.Utilization(),
			PendingShipments:   m.Outbound.PendingLen(),
			InTransitShipments: len(m.Outbound.InTransit()),
			Stock:              m.Store.Snapshot(),
		})
	}
	for _, id := range sortedKeys(o.processors) {
		p := o.processors[id]
		snap.Agents = append(snap.Agents, report.AgentStatus{
			ID: p.ID, Name: p.Name, Stage: string(p.Stage),
			Capacity:           p.Raw.Capacity() + p.Processed.Capacity(),
			Stored:             p.Raw.Total() + p.Processed.Total(),
			Utilization:        utilization(p.Raw.Total()+p.Processed.Total(), p.Raw.Capacity()+p.Processed.Capacity()),
			QueuedJobs:         p.Queue.QueuedLen(),
			ActiveJobs:         p.Queue.ActiveLen(),
			PendingShipments:   p.Outbound.PendingLen(),
			InTransitShipments: len(p.Outbound.InTransit()),
		})
	}
	for _, id := range sortedKeys(o.manufacturers) {
		m := o.manufacturers[id]
		snap.Agents = append(snap.Agents, report.AgentStatus{
			ID: m.ID, Name: m.Name, Stage: string(m.Stage),
			Capacity:           m.RawMaterials.Capacity() + m.FinishedGoods.Capacity(),
			Stored:             m.RawMaterials.Total() + m.FinishedGoods.Total(),
			Utilization:        utilization(m.RawMaterials.Total()+m.FinishedGoods.Total(), m.RawMaterials.Capacity()+m.FinishedGoods.Capacity()),
			QueuedJobs:         m.Queue.QueuedLen(),
			ActiveJobs:         m.Queue.ActiveLen(),
			PendingShipments:   m.Outbound.PendingLen(),
			InTransitShipments: len(m.Outbound.InTransit()),
		})
	}
	for _, id := range sortedKeys(o.distributors) {
		d := o.distributors[id]
		snap.Agents = append(snap.Agents, report.AgentStatus{
			ID: d.ID, Name: d.Name, Stage: string(d.Stage),
			Capacity:           d.Warehouse.Capacity(),
			Stored:             d.Warehouse.Total(),
			Utilization:        d.Warehouse.Utilization(),
			PendingShipments:   d.Outbound.PendingLen(),
			InTransitShipments: len(d.Outbound.InTransit()),
			Stock:              d.Warehouse.Snapshot(),
		})
	}
	for _, id := range sortedKeys(o.retailers) {
		r := o.retailers[id]
		snap.Agents = append(snap.Agents, report.AgentStatus{
			ID: r.ID, Name: r.Name, Stage: string(r.Stage),
			Capacity:    r.Products.Capacity(),
			Stored:      r.Products.Total(),
			Utilization: r.Products.Utilization(),
			Stock:       r.Products.Snapshot(),
		})
		snap.TotalRevenue += r.TotalRevenue
	}
	return snap
}

// Results builds the end-of-run report: aggregate metrics over every
// agent, the material flow replayed from the traces, and the operator
// decision audit.
func (o *Orchestrator) Results() report.Results {
	o.mu.Lock()
	defer o.mu.Unlock()

	var res report.Results
	for _, id := range o.traceOrder {
		t := o.traces[id]
		res.Metrics.InputOre += t.OriginalQuantity
		for _, st := range t.Steps {
			res.MaterialFlow = append(res.MaterialFlow, report.FlowStep{
				Time:      st.Time,
				TraceID:   t.ID,
				Stage:     st.Stage,
				AgentID:   st.AgentID,
				Operation: st.Operation,
				Material:  st.Material,
				Quantity:  st.Quantity,
			})
		}
	}
	for _, id := range sortedKeys(o.mines) {
		res.Metrics.TotalCosts += o.mines[id].ExtractionCosts
	}
	for _, id := range sortedKeys(o.processors) {
		res.Metrics.TotalCosts += o.processors[id].EnergySpent
	}
	for _, id := range sortedKeys(o.manufacturers) {
		m := o.manufacturers[id]
		res.Metrics.TotalCosts += m.EnergySpent
		for _, j := range m.Queue.History() {
			res.Metrics.UnitsProduced += j.ActualOutputQuantity
		}
	}
	for _, id := range sortedKeys(o.retailers) {
		r := o.retailers[id]
		res.Metrics.TotalRevenue += r.TotalRevenue
		res.Metrics.UnitsSold += r.UnitsSold
	}
	res.Metrics.NetProfit = res.Metrics.TotalRevenue - res.Metrics.TotalCosts
	if res.Metrics.InputOre > 0 {
		res.Metrics.ConversionRate = res.Metrics.UnitsSold / res.Metrics.InputOre
		res.Metrics.RevenuePerTon = res.Metrics.TotalRevenue / res.Metrics.InputOre
	}
	res.Decisions = append([]report.DecisionRecord(nil), o.decisions...)
	return res
}

func utilization(stored, capacity float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return stored / capacity
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
