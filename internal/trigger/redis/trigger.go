// Package redis implements the Redis trigger: one subscription per
// locked trigger entry, dispatching each published message to its target
// component's fermyon:spin/inbound-redis handler export.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wasmfactors/runtime/internal/executor"
	"github.com/wasmfactors/runtime/internal/factors"
	"github.com/wasmfactors/runtime/internal/observability/logging"
	"github.com/wasmfactors/runtime/internal/trigger"
)

const Type = "redis"

var candidateExports = []trigger.ExportProbe{
	{Name: "fermyon:spin/inbound-redis#handle-message", Description: "Spin inbound-redis handler"},
}

type Options struct {
	Addr     string
	Password string
	DB       int
	Logger   *slog.Logger
}

type Trigger struct {
	opts Options
}

func New(opts Options) *Trigger {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Trigger{opts: opts}
}

func (t *Trigger) Type() string { return Type }

func (t *Trigger) UpdateLinker(_ factors.Linker) error { return nil }

type subscription struct {
	channel     string
	componentID string
}

// Run subscribes once per redis-typed trigger entry and dispatches each
// received message to its component until ctx is cancelled.
func (t *Trigger) Run(ctx context.Context, exec *executor.Executor, cfg trigger.Config) error {
	var subs []subscription
	for _, lt := range cfg.Triggers {
		if lt.Type != Type {
			continue
		}
		componentID, ok := lt.Components[""]
		if !ok {
			return fmt.Errorf("redis trigger %q: no component reference", lt.ID)
		}
		channel, _ := lt.Config["channel"].(string)
		if channel == "" {
			return fmt.Errorf("redis trigger %q: missing channel", lt.ID)
		}
		subs = append(subs, subscription{channel: channel, componentID: componentID})
	}
	if len(subs) == 0 {
		return nil
	}

	client := goredis.NewClient(&goredis.Options{Addr: t.opts.Addr, Password: t.opts.Password, DB: t.opts.DB})
	defer client.Close()

	channels := make([]string, len(subs))
	targetByChannel := map[string]string{}
	for i, s := range subs {
		channels[i] = s.channel
		targetByChannel[s.channel] = s.componentID
	}

	pubsub := client.Subscribe(ctx, channels...)
	defer pubsub.Close()

	msgCh := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgCh:
			if !ok {
				return nil
			}
			componentID := targetByChannel[msg.Channel]
			t.dispatch(ctx, exec, componentID, msg)
		}
	}
}

func (t *Trigger) dispatch(ctx context.Context, exec *executor.Executor, componentID string, msg *goredis.Message) {
	invID := logging.GenerateInvocationID()
	ctx = logging.WithInvocationID(ctx, invID)
	log := logging.ForComponent(t.opts.Logger, componentID).With("invocation_id", invID, "channel", msg.Channel)

	ib, err := exec.Prepare(componentID, func(builders *factors.BuilderSet) factors.PrepareContext {
		return prepareContext{componentID: componentID, builders: builders}
	})
	if err != nil {
		log.Error("prepare failed", "error", err)
		return
	}
	inst, err := ib.Instantiate(ctx)
	if err != nil {
		log.Error("instantiate failed", "error", err)
		return
	}
	defer func() {
		if err := inst.Drop(ctx); err != nil {
			log.Warn("drop failed", "error", err)
		}
	}()

	exportName, err := trigger.ProbeExport(inst, Type, candidateExports)
	if err != nil {
		inst.SetFailed()
		log.Error("no compatible export", "error", err)
		return
	}

	inst.SetRunning()
	fn := inst.Module.ExportedFunction(exportName)
	if _, err := fn.Call(ctx); err != nil {
		inst.SetFailed()
		log.Error("handler trapped", "error", err)
		return
	}
	inst.SetCompleted()
}

type prepareContext struct {
	componentID string
	builders    *factors.BuilderSet
}

func (c prepareContext) ComponentID() string { return c.componentID }
func (c prepareContext) Builder(name string) (any, error) {
	return c.builders.Get(name)
}
