package pages

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"
	"github.com/runboard/runboard/internal/ctxkeys"
	"github.com/runboard/runboard/internal/model"
	"github.com/runboard/runboard/internal/service"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// DashboardProps is the view model of the dashboard page.
type DashboardProps struct {
	Dashboard *service.Dashboard
	Recent    []model.Activity
	Range     string
}

func Dashboard(props DashboardProps) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title := "Running Analytics"
		if cfg := ctxkeys.Config(ctx); cfg != nil && cfg.AppName != "" {
			title = cfg.AppName
		}

		p := &page{w: w}
		p.raw("<!DOCTYPE html>\n<html lang=\"en\"><head><meta charset=\"utf-8\">")
		p.raw("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">")
		p.raw("<title>")
		p.text(title)
		p.raw("</title></head><body><main>")
		p.raw("<h1>")
		p.text(title)
		p.raw("</h1>")

		d := props.Dashboard
		status(p, d)
		rangePicker(p, props.Range)
		summary(p, d.Summary)
		goal(p, d.Goal)
		records(p, d.Records)
		totals(p, "Monthly distance", d.Monthly)
		recent(p, props.Recent)
		patterns(p, d.Patterns)

		p.raw("</main></body></html>")
		return p.err
	})
}

// page accumulates the first write error so section helpers stay linear.
type page struct {
	w   io.Writer
	err error
}

func (p *page) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *page) text(s string) {
	p.raw(templ.EscapeString(s))
}

func (p *page) textf(format string, args ...any) {
	p.text(printer.Sprintf(format, args...))
}

func status(p *page, d *service.Dashboard) {
	p.raw("<section id=\"status\">")
	switch d.Status {
	case service.DataStatusEmpty:
		p.raw("<p>No runs yet. Run a sync to import activities.</p>")
	case service.DataStatusNeedsResync:
		p.raw("<p>The stored dataset is from an older format. Run a sync to rebuild it.</p>")
	}
	if d.LastUpdate != nil {
		p.raw("<p>Last update: ")
		p.text(d.LastUpdate.Local().Format("2006-01-02 15:04"))
		p.raw("</p>")
	} else {
		p.raw("<p>Never synced.</p>")
	}
	if d.SyncDue {
		p.raw("<form method=\"post\" action=\"/api/sync\"><button type=\"submit\">Sync now</button></form>")
	}
	if d.Skipped > 0 {
		p.textf("%d rows could not be read and are left out of the stats.", d.Skipped)
	}
	p.raw("</section>")
}

func rangePicker(p *page, current string) {
	p.raw("<nav id=\"ranges\">")
	for _, r := range service.Ranges {
		if r == current {
			p.raw("<strong>")
			p.text(r)
			p.raw("</strong> ")
			continue
		}
		p.raw("<a href=\"/?range=")
		p.text(r)
		p.raw("\">")
		p.text(r)
		p.raw("</a> ")
	}
	p.raw("</nav>")
}

func summary(p *page, s *service.Summary) {
	p.raw("<section id=\"summary\"><h2>")
	p.text(s.Label)
	p.raw("</h2><dl>")
	item(p, "Distance", printer.Sprintf("%.1f km", s.TotalKm))
	item(p, "Runs", printer.Sprintf("%d", s.Runs))
	item(p, "Average pace", service.FormatPace(s.AvgPace)+" /km")
	item(p, "Longest run", printer.Sprintf("%.1f km", s.LongestKm))
	item(p, "Elevation", printer.Sprintf("%.0f m", s.ElevationM))
	p.raw("</dl></section>")
}

func goal(p *page, g *service.GoalProgress) {
	p.raw("<section id=\"goal\"><h2>Monthly goal</h2>")
	p.raw(fmt.Sprintf("<progress max=\"100\" value=\"%.0f\"></progress>", g.Percent))
	p.textf(" %.1f of %.0f km (%.0f%%)", g.CurrentKm, g.Goal, g.Percent)
	if g.Achieved {
		p.raw(" <strong>Goal reached</strong>")
	}
	p.raw("<form method=\"post\" action=\"/api/goal\">")
	p.raw(fmt.Sprintf("<input type=\"number\" name=\"monthly_goal\" min=\"1\" step=\"any\" value=\"%g\">", g.Goal))
	p.raw("<button type=\"submit\">Save</button></form></section>")
}

func records(p *page, r *service.Records) {
	p.raw("<section id=\"records\"><h2>Records</h2><dl>")
	if r.FastestPace != nil {
		item(p, "Fastest pace", service.FormatPace(r.FastestPace.Pace)+" /km on "+day(r.FastestPace.Date))
	}
	if r.LongestRun != nil {
		item(p, "Longest run", printer.Sprintf("%.1f km on %s", r.LongestRun.DistanceKm, day(r.LongestRun.Date)))
	}
	if r.BestMonth != nil {
		item(p, "Best month", printer.Sprintf("%s, %.1f km", r.BestMonth.Label, r.BestMonth.Km))
	}
	item(p, "Current streak", printer.Sprintf("%d days", r.CurrentStreak))
	item(p, "Longest streak", printer.Sprintf("%d days", r.LongestStreak))
	p.raw("</dl></section>")
}

func totals(p *page, heading string, rows []service.PeriodTotal) {
	p.raw("<section><h2>")
	p.text(heading)
	p.raw("</h2><table><thead><tr><th>Period</th><th>Distance</th><th>Runs</th></tr></thead><tbody>")
	for _, row := range rows {
		p.raw("<tr><td>")
		p.text(row.Label)
		p.raw("</td><td>")
		p.textf("%.1f km", row.Km)
		p.raw("</td><td>")
		p.textf("%d", row.Runs)
		p.raw("</td></tr>")
	}
	p.raw("</tbody></table></section>")
}

func recent(p *page, runs []model.Activity) {
	p.raw("<section id=\"recent\"><h2>Recent runs</h2><table><thead><tr>")
	p.raw("<th>Date</th><th>Name</th><th>Distance</th><th>Time</th><th>Pace</th></tr></thead><tbody>")
	for _, a := range runs {
		p.raw("<tr><td>")
		p.text(a.StartDateLocal.Format("2006-01-02 15:04"))
		p.raw("</td><td>")
		p.text(a.Name)
		p.raw("</td><td>")
		p.textf("%.2f km", a.DistanceKm())
		p.raw("</td><td>")
		p.textf("%.0f min", a.MovingTimeMin())
		p.raw("</td><td>")
		p.text(service.FormatPace(a.Pace()))
		p.raw("</td></tr>")
	}
	p.raw("</tbody></table></section>")
}

func patterns(p *page, pt *service.Patterns) {
	p.raw("<section id=\"patterns\"><h2>Patterns</h2><dl>")
	for d := time.Sunday; d <= time.Saturday; d++ {
		item(p, d.String(), printer.Sprintf("%.1f km", pt.WeekdayKm[d.String()]))
	}
	p.raw("</dl><ul>")
	for _, zone := range []string{model.PaceZoneSpeed, model.PaceZoneTempo, model.PaceZoneEasy, model.PaceZoneRecovery} {
		p.raw("<li>")
		p.text(zone)
		p.textf(": %d", pt.PaceZones[zone])
		p.raw("</li>")
	}
	for _, tod := range []string{model.TimeOfDayMorning, model.TimeOfDayAfternoon, model.TimeOfDayEvening} {
		p.raw("<li>")
		p.text(tod)
		p.textf(": %d", pt.TimeOfDay[tod])
		p.raw("</li>")
	}
	p.raw("</ul></section>")
}

func item(p *page, term, value string) {
	p.raw("<dt>")
	p.text(term)
	p.raw("</dt><dd>")
	p.text(value)
	p.raw("</dd>")
}

func day(t time.Time) string {
	return t.Format("2006-01-02")
}
