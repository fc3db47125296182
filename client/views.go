package client

import "github.com/smartfix-dev/smartfix-api/models"

// TechnicianViews splits a technician's visible requests into the work they
// have accepted and the unassigned queue they may claim from.
type TechnicianViews struct {
	Accepted []models.RepairRequestView
	Queue    []models.RepairRequestView
}

// SplitTechnicianViews partitions requests for the technician in s. Requests
// assigned to someone else appear in neither view.
func SplitTechnicianViews(s *Session, requests []models.RepairRequestView) TechnicianViews {
	var views TechnicianViews
	if s == nil {
		return views
	}
	for _, r := range requests {
		switch {
		case r.TechnicianID != nil && *r.TechnicianID == s.UserID:
			views.Accepted = append(views.Accepted, r)
		case r.TechnicianID == nil && r.Status == models.StatusNew:
			views.Queue = append(views.Queue, r)
		}
	}
	return views
}

// SummarizeByStatus counts requests per status. Every status is present in the result.
func SummarizeByStatus(requests []models.RepairRequestView) map[models.Status]int {
	counts := make(map[models.Status]int, len(models.Statuses))
	for _, status := range models.Statuses {
		counts[status] = 0
	}
	for _, r := range requests {
		counts[r.Status]++
	}
	return counts
}
