package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/born-ml/vision/internal/logger"
)

// describeCPU returns the CPU device annotated with the host's model name and
// logical core count. Lookup failures only cost the description.
func describeCPU(ctx context.Context) ExecutionDevice {
	d := CPU()

	infos, err := cpu.InfoWithContext(ctx)
	if err != nil || len(infos) == 0 {
		logger.G(ctx).WithError(err).Debug("cpu info unavailable")
		return d
	}
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		cores = 0
	}

	model := strings.TrimSpace(infos[0].ModelName)
	if cores > 0 {
		d.Description = fmt.Sprintf("%s, %d logical cores", model, cores)
	} else {
		d.Description = model
	}
	return d
}
