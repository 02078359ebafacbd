package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zulandar/switchboard/internal/store"
)

// BuildDigest summarizes activity since the cutoff: message volume per
// tenant plus the current fleet of session states. Returns empty strings
// when there was no traffic, so quiet days send nothing.
func BuildDigest(st *store.Store, since time.Time) (title, body string, err error) {
	counts, err := st.MessageCountSince(since)
	if err != nil {
		return "", "", fmt.Errorf("notify: digest: %w", err)
	}
	if len(counts) == 0 {
		return "", "", nil
	}

	statuses, err := st.AllStatuses()
	if err != nil {
		return "", "", fmt.Errorf("notify: digest: %w", err)
	}
	states := make(map[string]string, len(statuses))
	for _, s := range statuses {
		states[s.TenantID] = s.State
	}

	tenants := make([]string, 0, len(counts))
	var total int64
	for id, n := range counts {
		tenants = append(tenants, id)
		total += n
	}
	sort.Strings(tenants)

	var b strings.Builder
	fmt.Fprintf(&b, "%d messages across %d tenants since %s.\n",
		total, len(tenants), since.Format("Jan 2 15:04"))
	for _, id := range tenants {
		state := states[id]
		if state == "" {
			state = "unknown"
		}
		fmt.Fprintf(&b, "- %s: %d messages (%s)\n", id, counts[id], state)
	}

	return "Daily activity digest", b.String(), nil
}
