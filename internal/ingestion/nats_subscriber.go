package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"VaultLedger/internal/core"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/vault"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	CommandStream   = "VAULT_COMMANDS"
	CommandConsumer = "vault-commands"

	// CallerHeader carries the authenticated caller identity.
	CallerHeader = "Vault-Caller"
)

// Executor is the subset of core.Service the subscriber drives.
type Executor interface {
	InitializeOracle(ctx context.Context, req core.Request) (vault.PriceOracle, error)
	InitializeLedger(ctx context.Context, req core.Request) (vault.DepositLedger, error)
	UpdatePrice(ctx context.Context, req core.Request) (vault.PriceUpdate, error)
	SetLastUpdateTime(ctx context.Context, req core.Request, ts int64) (vault.PriceOracle, error)
	Deposit(ctx context.Context, req core.Request, amount uint64) (vault.DepositReceipt, error)
	Withdraw(ctx context.Context, req core.Request, owner uuid.UUID, shares uint64) (vault.WithdrawReceipt, error)
}

// Message is the part of jetstream.Msg the subscriber uses.
type Message interface {
	Subject() string
	Data() []byte
	Headers() nats.Header
	Ack() error
	Nak() error
	Term() error
}

// CommandSubscriber consumes vault commands from JetStream and executes them
// against the core. Messages are acknowledged only after the operation
// commits; rejected commands are terminated so they are not redelivered.
type CommandSubscriber struct {
	js       jetstream.JetStream
	exec     Executor
	metrics  *observability.Metrics
	logger   zerolog.Logger
	consumer jetstream.ConsumeContext

	allowClockOverride bool
}

func NewCommandSubscriber(js jetstream.JetStream, exec Executor, allowClockOverride bool, metrics *observability.Metrics, logger zerolog.Logger) *CommandSubscriber {
	return &CommandSubscriber{
		js:                 js,
		exec:               exec,
		metrics:            metrics,
		logger:             logger.With().Str("component", "nats-subscriber").Logger(),
		allowClockOverride: allowClockOverride,
	}
}

// Subscribe creates the durable consumer and starts delivery.
// The consumer uses explicit ACK, max_deliver=5, ack_wait=30s.
func (cs *CommandSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := cs.js.CreateOrUpdateConsumer(ctx, CommandStream, jetstream.ConsumerConfig{
		Durable:       CommandConsumer,
		FilterSubject: CommandSubjectPrefix + "*",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", CommandConsumer, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		cs.Handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", CommandConsumer, err)
	}
	cs.consumer = cc

	cs.logger.Info().Str("subject", CommandSubjectPrefix+"*").Str("consumer", CommandConsumer).Msg("subscribed")
	return nil
}

// Handle executes one message and settles it:
// Ack on success or duplicate, Term on a rejected or malformed command, Nak
// on infrastructure failure.
func (cs *CommandSubscriber) Handle(ctx context.Context, msg Message) {
	cmd, err := ParseCommand(msg.Subject(), msg.Data())
	if err != nil {
		cs.settle(msg, "unknown", "malformed", msg.Term)
		cs.logger.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed command")
		return
	}

	caller, err := uuid.Parse(msg.Headers().Get(CallerHeader))
	if err != nil {
		cs.settle(msg, string(cmd.Kind), "unauthenticated", msg.Term)
		cs.logger.Warn().Err(err).Str("command", string(cmd.Kind)).Msg("missing or invalid caller header")
		return
	}

	err = cs.Execute(ctx, caller, cmd)
	switch {
	case err == nil:
		cs.settle(msg, string(cmd.Kind), "applied", msg.Ack)
	case errors.Is(err, vault.ErrDuplicateRequest):
		cs.settle(msg, string(cmd.Kind), "duplicate", msg.Ack)
	case vault.IsUserError(err), errors.Is(err, ErrClockOverrideDisabled):
		cs.settle(msg, string(cmd.Kind), vault.ErrorKind(err), msg.Term)
		cs.logger.Info().Err(err).Str("command", string(cmd.Kind)).Str("caller", caller.String()).Msg("command rejected")
	default:
		cs.settle(msg, string(cmd.Kind), "retry", msg.Nak)
		cs.logger.Error().Err(err).Str("command", string(cmd.Kind)).Msg("command failed, will be redelivered")
	}
}

// ErrClockOverrideDisabled rejects set_last_update when the override is off.
var ErrClockOverrideDisabled = errors.New("last update time override is disabled")

// Execute runs cmd as caller.
func (cs *CommandSubscriber) Execute(ctx context.Context, caller uuid.UUID, cmd Command) error {
	req := core.Request{Caller: caller, IdempotencyKey: cmd.IdempotencyKey}
	var err error
	switch cmd.Kind {
	case CommandInitializeOracle:
		_, err = cs.exec.InitializeOracle(ctx, req)
	case CommandInitializeLedger:
		_, err = cs.exec.InitializeLedger(ctx, req)
	case CommandUpdatePrice:
		_, err = cs.exec.UpdatePrice(ctx, req)
	case CommandSetLastUpdate:
		if !cs.allowClockOverride {
			return ErrClockOverrideDisabled
		}
		_, err = cs.exec.SetLastUpdateTime(ctx, req, cmd.LastUpdateTime)
	case CommandDeposit:
		_, err = cs.exec.Deposit(ctx, req, cmd.Amount)
	case CommandWithdraw:
		owner := cmd.Owner
		if owner == uuid.Nil {
			owner = caller
		}
		_, err = cs.exec.Withdraw(ctx, req, owner, cmd.Shares)
	default:
		err = fmt.Errorf("unknown command: %s", cmd.Kind)
	}
	return err
}

func (cs *CommandSubscriber) settle(msg Message, command, result string, fn func() error) {
	if err := fn(); err != nil {
		cs.logger.Warn().Err(err).Str("subject", msg.Subject()).Str("result", result).Msg("settle message")
	}
	if cs.metrics != nil {
		cs.metrics.IngestMessages.WithLabelValues(command, result).Inc()
	}
}

// Stop gracefully stops the consumer.
func (cs *CommandSubscriber) Stop() {
	if cs.consumer != nil {
		cs.consumer.Stop()
	}
	cs.logger.Info().Msg("NATS subscriber stopped")
}

// EnsureStreams creates the command and event streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      CommandStream,
			Subjects:  []string{CommandSubjectPrefix + ">"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:       EventStream,
			Subjects:   []string{EventSubjectPrefix + ">"},
			Storage:    jetstream.FileStorage,
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     72 * time.Hour,
			Replicas:   1,
			Duplicates: 2 * time.Minute,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		logger.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("vaultledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
