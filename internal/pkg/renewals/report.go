package renewals

import "github.com/cuidarte/crm/app/models"

// Report is the renewals page for one month as seen by one viewer.
type Report struct {
	Period      string       `json:"period"`
	Result                   // monthly, overdue and churn lists
	Groups      []Group      `json:"groups"`
	ChurnGroups []ChurnGroup `json:"churn_groups"`
	Metrics     Metrics      `json:"metrics"`
}

// ReportOptions selects the viewer scope and the accounting filter.
type ReportOptions struct {
	Viewer *models.User
	// ViewAll lists every client. Otherwise only clients the viewer belongs to.
	ViewAll  bool
	OnlyPaid bool
}

// BuildReport detects the period's renewals over the clients visible to the
// viewer. Metrics are taken before the accounting filter.
func BuildReport(clients []*models.Client, period Period, src Sources, opts ReportOptions) Report {
	visible := clients
	if !opts.ViewAll {
		visible = nil
		for _, c := range clients {
			if opts.Viewer != nil && BelongsTo(opts.Viewer, c) {
				visible = append(visible, c)
			}
		}
	}

	res := Detect(visible, period, src)
	metrics := ComputeMetrics(visible, period, res)
	if opts.OnlyPaid {
		res = AccountingView(res)
	}

	return Report{
		Period:      period.String(),
		Result:      res,
		Groups:      GroupByStaff(res.Monthly, src.Staff),
		ChurnGroups: GroupChurnByStaff(res.Churn, src.Staff),
		Metrics:     metrics,
	}
}
