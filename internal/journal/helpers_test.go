package journal

import (
	"github.com/nerrad567/mqtt2file/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt2file/internal/persist"
)

func persistMessage(filename string, payload []byte) *mqtt.Message {
	return mqtt.NewMessage("sensors/probe", payload, map[string]string{persist.FilenameProperty: filename})
}
