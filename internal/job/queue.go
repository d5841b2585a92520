package job

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/talgya/chainflow/internal/entropy"
	"github.com/talgya/chainflow/internal/inventory"
	"github.com/talgya/chainflow/internal/recipe"
)

// Quality-control pass rates by quality standard, scaled by the level of
// testing performed. Capped at 99% — nothing ships perfectly.
var (
	qcBaseRates = map[string]float64{
		"standard":         0.95,
		"premium":          0.90,
		"industrial_grade": 0.98,
	}
	qcLevelMultipliers = map[string]float64{
		"basic":    0.95,
		"standard": 1.0,
		"enhanced": 1.05,
	}
)

const qcPassCap = 0.99

// Request carries the parameters for one enqueue call.
type Request struct {
	Recipe        recipe.Recipe
	BatchSize     float64
	QualityTarget float64

	// QualityStandard and QCLevel enable the quality-control gate on
	// completion. Empty values skip the gate (processing-stage jobs).
	QualityStandard string
	QCLevel         string

	Priority Priority
}

// Queue schedules transformation jobs for one agent across its
// equipment lines. Input is reserved from the input ledger at enqueue;
// output is credited to the output ledger on successful completion.
// Queue is not safe for concurrent use; each agent owns its queue
// exclusively.
type Queue struct {
	agentID string
	input   *inventory.Ledger
	output  *inventory.Ledger
	lines   map[string]*Line
	rng     *entropy.Source

	// OutputVariance is the ± spread applied to the expected output on
	// completion: 0.05 for processing, 0.03 for manufacturing.
	OutputVariance float64

	queued  []*Job
	active  map[string]*Job // line name → running job
	history []*Job
	created uint64

	QCPasses   int
	QCFailures int
}

// NewQueue creates a queue over the given ledgers and lines.
func NewQueue(agentID string, input, output *inventory.Ledger, lines []Line, rng *entropy.Source, outputVariance float64) *Queue {
	lineIndex := make(map[string]*Line, len(lines))
	for i := range lines {
		l := lines[i]
		lineIndex[l.Name] = &l
	}
	return &Queue{
		agentID:        agentID,
		input:          input,
		output:         output,
		lines:          lineIndex,
		rng:            rng,
		OutputVariance: outputVariance,
		active:         make(map[string]*Job),
	}
}

// Line returns the named equipment line, or nil.
func (q *Queue) Line(name string) *Line { return q.lines[name] }

// SetLineStatus marks a line operational or down and optionally updates
// its efficiency (pass a negative efficiency to leave it unchanged).
func (q *Queue) SetLineStatus(name string, operational bool, efficiency float64) error {
	line, ok := q.lines[name]
	if !ok {
		return fmt.Errorf("unknown line %q", name)
	}
	line.Operational = operational
	if efficiency >= 0 {
		line.Efficiency = efficiency
	}
	return nil
}

// Enqueue reserves the request's inputs and adds a queued job. It fails
// without creating a job when the required line is unknown or down
// (ErrEquipmentUnavailable) or when the input ledger cannot cover the
// batch (ErrInsufficientStock); a busy line queues normally.
func (q *Queue) Enqueue(now time.Time, req Request) (*Job, error) {
	line, ok := q.lines[req.Recipe.RequiredLine]
	if !ok {
		return nil, fmt.Errorf("recipe %s needs line %q: %w", req.Recipe.Name, req.Recipe.RequiredLine, ErrEquipmentUnavailable)
	}
	if !line.Operational {
		return nil, fmt.Errorf("line %q is down: %w", line.Name, ErrEquipmentUnavailable)
	}

	// Reserve every input up front. On a later failure, refund the
	// reservations already taken so a rejected enqueue never leaks stock.
	reserved := make(map[string]float64, len(req.Recipe.Inputs))
	for material, ratio := range req.Recipe.Inputs {
		need := req.BatchSize * ratio
		if err := q.input.Reserve(material, need); err != nil {
			for m, qty := range reserved {
				q.input.Add(m, qty)
			}
			return nil, fmt.Errorf("enqueue %s: %w", req.Recipe.Name, err)
		}
		reserved[material] = need
	}

	expected := recipe.Apply(req.Recipe, req.BatchSize, req.QualityTarget, line.Efficiency)

	j := &Job{
		ID:                     NewJobID(q.agentID, q.created),
		Recipe:                 req.Recipe,
		BatchSize:              req.BatchSize,
		Inputs:                 reserved,
		ExpectedOutputMaterial: expected.OutputMaterial,
		ExpectedOutputQuantity: expected.OutputQuantity,
		Duration:               expected.Duration,
		EnergyCost:             expected.EnergyCost,
		QualityTarget:          req.QualityTarget,
		QualityStandard:        req.QualityStandard,
		QCLevel:                req.QCLevel,
		Priority:               req.Priority,
		Status:                 StatusQueued,
		seq:                    q.created,
		CreatedAt:              now,
	}
	q.created++
	q.queued = append(q.queued, j)
	q.sortQueue()

	slog.Info("job queued",
		"agent", q.agentID,
		"job", j.ID,
		"recipe", req.Recipe.Name,
		"batch", req.BatchSize,
		"expected_output", fmt.Sprintf("%.1f %s", expected.OutputQuantity, expected.OutputMaterial),
		"priority", req.Priority.String(),
	)
	return j, nil
}

// sortQueue keeps the queue priority-ordered, FIFO within a tier.
func (q *Queue) sortQueue() {
	sort.SliceStable(q.queued, func(i, k int) bool {
		if q.queued[i].Priority != q.queued[k].Priority {
			return q.queued[i].Priority < q.queued[k].Priority
		}
		return q.queued[i].seq < q.queued[k].seq
	})
}

// Advance completes any active jobs whose duration has elapsed by now,
// then promotes queued jobs onto free operational lines. Returns the
// jobs that finished during this call (completed or QC-failed).
func (q *Queue) Advance(now time.Time) []*Job {
	finished := q.completeElapsed(now)
	q.dispatch(now)
	return finished
}

func (q *Queue) completeElapsed(now time.Time) []*Job {
	var finished []*Job
	for lineName, j := range q.active {
		if now.Before(j.StartedAt.Add(j.Duration)) {
			continue
		}
		j.CompletedAt = now

		if q.passesQC(j) {
			actual := j.ExpectedOutputQuantity * q.rng.Variance(q.OutputVariance)
			credited := q.output.Add(j.ExpectedOutputMaterial, actual)
			if credited < actual {
				slog.Warn("output clipped at storage capacity",
					"agent", q.agentID, "job", j.ID,
					"produced", actual, "stored", credited)
			}
			j.Status = StatusCompleted
			j.ActualOutputQuantity = credited
			j.ActualQuality = j.QualityTarget * q.rng.Variance(0.05)
			q.QCPasses++
			slog.Info("job completed",
				"agent", q.agentID, "job", j.ID,
				"output", fmt.Sprintf("%.1f %s", credited, j.ExpectedOutputMaterial))
		} else {
			// The batch is burned: input and clock time are spent,
			// nothing is credited.
			j.Status = StatusQCFailed
			j.ActualOutputQuantity = 0
			q.QCFailures++
			slog.Warn("job failed quality control", "agent", q.agentID, "job", j.ID)
		}

		q.history = append(q.history, j)
		finished = append(finished, j)
		delete(q.active, lineName)
	}
	return finished
}

// passesQC rolls the quality-control gate. Jobs without a QC level
// (processing-stage work) always pass.
func (q *Queue) passesQC(j *Job) bool {
	if j.QCLevel == "" {
		return true
	}
	base, ok := qcBaseRates[j.QualityStandard]
	if !ok {
		base = qcBaseRates["standard"]
	}
	mult, ok := qcLevelMultipliers[j.QCLevel]
	if !ok {
		mult = 1.0
	}
	rate := base * mult
	if rate > qcPassCap {
		rate = qcPassCap
	}
	return q.rng.Chance(rate)
}

// dispatch promotes queued jobs onto free lines. The queue is scanned in
// priority order and a job whose line is busy is skipped rather than
// blocking jobs behind it whose lines are free.
func (q *Queue) dispatch(now time.Time) {
	remaining := q.queued[:0]
	for _, j := range q.queued {
		line := q.lines[j.Recipe.RequiredLine]
		_, busy := q.active[line.Name]
		if busy || !line.Operational {
			remaining = append(remaining, j)
			continue
		}
		j.Status = StatusActive
		j.StartedAt = now
		q.active[line.Name] = j
		slog.Info("job started", "agent", q.agentID, "job", j.ID, "line", line.Name)
	}
	q.queued = remaining
}

// QueuedLen returns the number of jobs waiting to start.
func (q *Queue) QueuedLen() int { return len(q.queued) }

// ActiveLen returns the number of running jobs.
func (q *Queue) ActiveLen() int { return len(q.active) }

// History returns all finished jobs in completion order.
func (q *Queue) History() []*Job { return q.history }
