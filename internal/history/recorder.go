package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dysonmetrics/telemetry/internal/state"
)

// RecorderConfig holds batching settings.
type RecorderConfig struct {
	BatchSize     int           // rows per insert batch
	FlushInterval time.Duration // periodic flush
	BufferSize    int           // pending sample buffer; default 256
}

func (c *RecorderConfig) applyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 500
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = 2 * time.Second
	}
	if c.BufferSize == 0 {
		c.BufferSize = 256
	}
}

// sampleRow is one planet observation bound for factory_samples.
type sampleRow struct {
	SampledAt      int64 // µs since epoch
	GameTick       int64
	PlanetID       int
	PlanetName     string
	GenerationMW   float64
	ConsumptionMW  float64
	AssemblerCount int
	BeltCount      int
	Items          []byte // JSONB: per-item production/consumption rates
}

// itemRateJSON is the JSONB layout for one item's rates.
type itemRateJSON struct {
	Name        string  `json:"name"`
	Production  float64 `json:"production"`
	Consumption float64 `json:"consumption"`
	Storage     int     `json:"storage"`
}

// Recorder buffers live state samples and batch-inserts them into
// TimescaleDB. Insert failures are logged and dropped; telemetry
// history is best effort.
type Recorder struct {
	cfg     RecorderConfig
	db      *pgxpool.Pool
	logger  *slog.Logger
	session uuid.UUID

	input chan *state.FactoryState

	batch       []sampleRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRecorder creates a recorder with a fresh session ID.
func NewRecorder(cfg RecorderConfig, db *pgxpool.Pool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Recorder{
		cfg:     cfg,
		db:      db,
		logger:  logger,
		session: uuid.New(),
		input:   make(chan *state.FactoryState, cfg.BufferSize),
		batch:   make([]sampleRow, 0, cfg.BatchSize),
	}
}

// Session returns the recorder's session ID.
func (r *Recorder) Session() uuid.UUID {
	return r.session
}

// Record enqueues a sample without blocking; under backpressure the
// sample is dropped. Suitable as a live client observer callback.
func (r *Recorder) Record(st *state.FactoryState) {
	select {
	case r.input <- st:
	default:
		r.logger.Warn("history buffer full, dropping sample")
	}
}

// Start begins consuming samples and writing to the database.
func (r *Recorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.wg.Add(1)
	go r.consumeLoop()

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("history recorder started",
		"session", r.session,
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the recorder and flushes pending rows.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping history recorder")

	if r.cancel != nil {
		r.cancel()
	}
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("history recorder stop timed out")
	}

	r.flush()
	return nil
}

func (r *Recorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case st := <-r.input:
			r.handleSample(st)
		}
	}
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.flushTicker.C:
			r.flush()
		}
	}
}

// handleSample transforms a state into per-planet rows.
func (r *Recorder) handleSample(st *state.FactoryState) {
	rows := transform(st)

	r.batchMu.Lock()
	r.batch = append(r.batch, rows...)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush()
	}
}

// transform converts a factory state into sample rows, one per planet.
func transform(st *state.FactoryState) []sampleRow {
	sampledAt := st.Timestamp.UnixMicro()

	rows := make([]sampleRow, 0, len(st.Planets))
	for _, planet := range st.Planets {
		row := sampleRow{
			SampledAt:      sampledAt,
			GameTick:       st.GameTick,
			PlanetID:       planet.PlanetID,
			PlanetName:     planet.PlanetName,
			AssemblerCount: len(planet.Assemblers),
			BeltCount:      len(planet.Belts),
			Items:          itemsToJSONB(planet),
		}
		if planet.Power != nil {
			row.GenerationMW = planet.Power.GenerationMW
			row.ConsumptionMW = planet.Power.ConsumptionMW
		}
		rows = append(rows, row)
	}
	return rows
}

func itemsToJSONB(planet *state.PlanetState) []byte {
	items := make([]itemRateJSON, 0, len(planet.Production))
	for _, m := range planet.Production {
		items = append(items, itemRateJSON{
			Name:        m.ItemName,
			Production:  m.ProductionRate,
			Consumption: m.ConsumptionRate,
			Storage:     m.CurrentStorage,
		})
	}
	data, _ := json.Marshal(items)
	return data
}

// flush writes the current batch to the database.
func (r *Recorder) flush() {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}
	batch := r.batch
	r.batch = make([]sampleRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()
	if err := r.batchInsert(batch); err != nil {
		r.logger.Error("sample batch insert failed", "error", err, "count", len(batch))
		return
	}

	r.logger.Debug("flushed samples",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (r *Recorder) batchInsert(rows []sampleRow) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO factory_samples (session_id, sampled_at, game_tick, planet_id, planet_name, generation_mw, consumption_mw, assembler_count, belt_count, items)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (session_id, sampled_at, planet_id) DO NOTHING
		`, r.session, row.SampledAt, row.GameTick, row.PlanetID, row.PlanetName,
			row.GenerationMW, row.ConsumptionMW, row.AssemblerCount, row.BeltCount, row.Items)
	}

	ctx := r.ctx
	if ctx == nil || ctx.Err() != nil {
		// Final flush after Stop still needs a live context.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
