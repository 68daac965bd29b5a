package airzone

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/anicoll/airzone-integration/internal/pkg/model"
)

func reactSetpoint(ctx context.Context, e *entity, f *field, value any) {
	v, ok := value.(float64)
	if !ok {
		e.rejected(f, value)
		return
	}
	clamped := e.bounds.clamp(v)
	if clamped != v {
		e.session.logger.Info("clamped setpoint", zap.String("path", e.path),
			zap.Float64("requested", v), zap.Float64("sent", clamped))
	}
	e.session.SendCommand(ctx, e, f.option, clamped)
}

func reactSwitch(ctx context.Context, e *entity, f *field, value any) {
	on, ok := value.(bool)
	if !ok {
		e.rejected(f, value)
		return
	}
	e.session.SendCommand(ctx, e, f.option, onOff(on))
}

// reactCode forwards a raw code unchanged.
func reactCode(ctx context.Context, e *entity, f *field, value any) {
	e.session.SendCommand(ctx, e, f.option, wireValue(value))
}

// reactSystemMode turns every zone off before a stop mode is forwarded.
func reactSystemMode(ctx context.Context, e *entity, f *field, value any) {
	if codeKey(value) == e.session.api.stopCode() {
		for _, child := range e.childEntities() {
			if child.Kind() != KindZone {
				continue
			}
			e.session.SendCommand(ctx, child, e.session.api.powerOption(), onOff(false))
		}
	}
	reactCode(ctx, e, f, value)
}

func reactFanSpeed(ctx context.Context, e *entity, f *field, value any) {
	v, ok := value.(float64)
	if !ok {
		e.rejected(f, value)
		return
	}
	speed := int(min(max(math.Round(v), 0), model.MaxFanSpeed))
	e.session.SendCommand(ctx, e, f.option, speed)
}

func reactSleepTimer(ctx context.Context, e *entity, f *field, value any) {
	v, ok := value.(float64)
	if !ok {
		e.rejected(f, value)
		return
	}
	e.session.SendCommand(ctx, e, f.option, int(nearest(model.SleepTimerSteps, v)))
}

func reactText(ctx context.Context, e *entity, f *field, value any) {
	v, ok := value.(string)
	if !ok || v == "" {
		e.rejected(f, value)
		return
	}
	e.session.SendCommand(ctx, e, f.option, v)
}

func (e *entity) rejected(f *field, value any) {
	e.session.logger.Warn("rejected write", zap.String("path", e.path), zap.String("field", f.name), zap.Any("value", value))
}

func onOff(on bool) int {
	if on {
		return 1
	}
	return 0
}

// nearest picks the step closest to v, the lower one on a tie.
func nearest(steps []float64, v float64) float64 {
	best := steps[0]
	for _, s := range steps[1:] {
		if math.Abs(s-v) < math.Abs(best-v) {
			best = s
		}
	}
	return best
}

// wireValue sends whole numbers as integers.
func wireValue(v any) any {
	if f, ok := v.(float64); ok && f == math.Trunc(f) {
		return int(f)
	}
	return v
}
