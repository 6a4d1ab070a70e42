package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/propduel/takes-platform/internal/grading/engine"
	"github.com/propduel/takes-platform/internal/grading/provider"
	sharedkafka "github.com/propduel/takes-platform/internal/shared/kafka"
	"github.com/propduel/takes-platform/pkg/contracts/events"
)

// Worker consome pedidos de apuração do Kafka e aciona o engine.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa.
type Worker struct {
	Log       *zap.Logger
	Reader    *kafka.Reader
	Engine    *engine.Engine
	Graded    *kafka.Writer // tópico prop_graded
	DLQ       *kafka.Writer // nil = sem DLQ
	Retries   int           // tentativas por pedido antes da DLQ (default 3)
	OnConsume func()        // métricas (counter++)
	OnGraded  func()        // métricas
	OnError   func(string)  // métricas por fase
}

// Run inicia o loop principal de consumo e apuração.
func (w *Worker) Run(ctx context.Context) error {
	for {
		_, value, err := sharedkafka.ReadNext(ctx, w.Reader)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			w.Log.Warn("kafka read failed", zap.Error(err))
			if w.OnError != nil {
				w.OnError("read")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if w.OnConsume != nil {
			w.OnConsume()
		}

		var req events.GradeRequested
		if err := json.Unmarshal(value, &req); err != nil {
			w.Log.Warn("invalid message", zap.Error(err))
			if w.OnError != nil {
				w.OnError("decode")
			}
			continue
		}

		if err := w.processOne(ctx, &req); err != nil {
			w.Log.Error("grade request failed", zap.String("prop_id", req.PropID), zap.Error(err))
			// Backoff simples para evitar flood em caso de erro
			time.Sleep(500 * time.Millisecond)
		}
	}
}

// processOne apura um prop com retry; esgotadas as tentativas, o pedido vai
// para a DLQ. Pedido de prop inexistente é descartado sem retry.
func (w *Worker) processOne(ctx context.Context, req *events.GradeRequested) error {
	retries := w.Retries
	if retries == 0 {
		retries = 3
	}

	var n int64
	var err error
	for i := 0; i < retries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(300*i) * time.Millisecond)
		}
		n, err = w.Engine.GradeProp(ctx, req.PropID, false)
		if err == nil {
			break
		}
		if errors.Is(err, engine.ErrNotFound) {
			if w.OnError != nil {
				w.OnError("not_found")
			}
			return err
		}
		if !errors.Is(err, provider.ErrResolutionUnavailable) {
			break
		}
	}
	if err != nil {
		if w.OnError != nil {
			w.OnError("grade")
		}
		if w.DLQ != nil {
			b, _ := json.Marshal(req)
			_ = sharedkafka.WriteJSON(ctx, w.DLQ, req.PropID, b)
		}
		return err
	}

	if w.OnGraded != nil {
		w.OnGraded()
	}

	p, perr := w.Engine.Store.GetProp(ctx, req.PropID)
	if perr != nil {
		return perr
	}
	ev := events.PropGraded{
		PropID:      req.PropID,
		WinningSide: p.WinningSide,
		GradedCount: n,
		Ts:          time.Now(),
	}
	b, _ := json.Marshal(ev)
	return sharedkafka.WriteJSON(ctx, w.Graded, req.PropID, b)
}
