package distribution

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"mediarelay/internal/logging"
	"mediarelay/internal/registry"
	"mediarelay/internal/services"
)

// RegistryDestination labels the outcome recorded when destinations cannot be listed.
const RegistryDestination = "registry"

// Status is the result of delivering one batch to one destination.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Batch is a set of artifacts belonging to one requester.
type Batch struct {
	Username  string
	AvatarURL string
	Artifacts []string
}

// Message is what a Deliverer sends to a single destination.
type Message struct {
	Username  string
	AvatarURL string
	Files     []string
}

// Outcome records delivery of a batch to one destination.
type Outcome struct {
	Destination string `json:"destination"`
	ChannelID   string `json:"channel_id,omitempty"`
	Status      Status `json:"status"`
	Reason      string `json:"reason,omitempty"`
}

// Lister returns the destinations a batch is delivered to.
type Lister interface {
	List(ctx context.Context) ([]registry.Destination, error)
}

// Deliverer sends one message to one destination.
type Deliverer interface {
	Deliver(ctx context.Context, dest registry.Destination, msg Message) error
}

// Config describes distributor dependencies.
type Config struct {
	Lister      Lister
	Deliverer   Deliverer
	MaxParallel int
	Logger      *slog.Logger
}

// Distributor delivers batches and cleans up their artifacts.
type Distributor struct {
	lister      Lister
	deliverer   Deliverer
	maxParallel int
	logger      *slog.Logger
}

// New constructs a Distributor. MaxParallel <= 0 delivers to every destination at once.
func New(cfg Config) *Distributor {
	return &Distributor{
		lister:      cfg.Lister,
		deliverer:   cfg.Deliverer,
		maxParallel: cfg.MaxParallel,
		logger:      logging.NewComponentLogger(cfg.Logger, "distribution"),
	}
}

// Distribute delivers batch to every destination and returns one outcome per
// destination. Artifact files are removed before Distribute returns.
func (d *Distributor) Distribute(ctx context.Context, batch Batch) []Outcome {
	ctx = services.WithStage(ctx, "distribution")
	logger := logging.WithContext(ctx, d.logger)
	defer d.cleanup(logger, batch.Artifacts)

	if d.lister == nil {
		err := services.Wrap(services.ErrConfiguration, "distribution", "list destinations", "no destination registry configured", nil)
		return []Outcome{registryOutcome(err)}
	}
	dests, err := d.lister.List(ctx)
	if err != nil {
		logging.ErrorWithContext(logger, "destination listing failed", "registry_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "batch not delivered"),
		)
		return []Outcome{registryOutcome(err)}
	}
	if len(dests) == 0 {
		logger.Warn("no destinations registered", logging.Int("artifact_count", len(batch.Artifacts)))
		return nil
	}

	msg := Message{Username: batch.Username, AvatarURL: batch.AvatarURL, Files: batch.Artifacts}
	outcomes := make([]Outcome, len(dests))
	var sem chan struct{}
	if d.maxParallel > 0 {
		sem = make(chan struct{}, d.maxParallel)
	}

	var wg sync.WaitGroup
	for i, dest := range dests {
		outcomes[i] = Outcome{Destination: dest.Label(), ChannelID: dest.ChannelID, Status: StatusFailed}
		if !dest.HasCredentials() {
			outcomes[i].Reason = services.Reason(services.ErrMissingCredentials)
			logger.Warn("destination skipped",
				logging.String("destination", dest.Label()),
				logging.String("reason", outcomes[i].Reason),
			)
			continue
		}
		if d.deliverer == nil {
			outcomes[i].Reason = services.Describe(services.Wrap(services.ErrDelivery, "distribution", "deliver", "no deliverer configured", nil))
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					outcomes[i].Reason = services.Describe(services.Wrap(services.ErrDelivery, "distribution", "deliver", "", ctx.Err()))
					return
				}
			}
			if err := d.deliverer.Deliver(ctx, dest, msg); err != nil {
				if !errors.Is(err, services.ErrDelivery) {
					err = services.Wrap(services.ErrDelivery, "distribution", "deliver", dest.Label(), err)
				}
				outcomes[i].Reason = services.Describe(err)
				logging.WarnWithContext(logger, "delivery failed", "delivery_failed",
					logging.String("destination", dest.Label()),
					logging.Error(err),
					logging.String(logging.FieldImpact, "destination missed this batch"),
				)
				return
			}
			outcomes[i].Status = StatusSuccess
			logger.Info("batch delivered",
				logging.String("destination", dest.Label()),
				logging.Int("artifact_count", len(msg.Files)),
			)
		}()
	}
	wg.Wait()
	return outcomes
}

func (d *Distributor) cleanup(logger *slog.Logger, artifacts []string) {
	for _, path := range artifacts {
		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Debug("artifact already removed", logging.String("path", path))
				continue
			}
			logger.Warn("artifact cleanup failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "cleanup_failed"),
				logging.String(logging.FieldErrorHint, "remove the file from the cache directory manually"),
			)
		}
	}
}

func registryOutcome(err error) Outcome {
	return Outcome{
		Destination: RegistryDestination,
		Status:      StatusFailed,
		Reason:      fmt.Sprintf("RegistryFailure: %v", err),
	}
}
