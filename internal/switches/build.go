package switches

import (
	"ezvizswitch/internal/clock"
	"ezvizswitch/internal/coordinator"
	"ezvizswitch/internal/ezviz"

	"go.uber.org/zap"
)

// BuildEntities fans an inventory out into entities ordered by serial, then
// by server capability order. Repeated capability types on one device are
// skipped since they would collide on the unique ID.
func BuildEntities(inv coordinator.Inventory, client Client, mode Mode, clk clock.Clock, logger *zap.Logger) []*Entity {
	var entities []*Entity

	for _, serial := range inv.Serials() {
		device := inv[serial]
		if len(device.Capabilities) == 0 {
			continue
		}

		if mode == Legacy {
			entities = append(entities, NewEntity(device, device.SwitchType, mode, client, clk, logger))
			continue
		}

		seen := make(map[ezviz.SwitchType]bool)
		for _, c := range device.Capabilities {
			if seen[c.SwitchType] {
				logger.Warn("Skipping repeated capability",
					zap.String("serial", serial),
					zap.Int("switch_type", int(c.SwitchType)))
				continue
			}
			seen[c.SwitchType] = true
			entities = append(entities, NewEntity(device, c.SwitchType, mode, client, clk, logger))
		}
	}

	logger.Info("Created switch entities",
		zap.Int("devices", len(inv)),
		zap.Int("entities", len(entities)),
		zap.Stringer("mode", mode))
	return entities
}
