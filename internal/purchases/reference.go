package purchases

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const referencePrefix = "EV_"

// NewReference returns EV_<unix millis>_<8 upper hex chars>.
func NewReference(now time.Time) string {
	entropy := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s%d_%s", referencePrefix, now.UnixMilli(), strings.ToUpper(entropy[:8]))
}
