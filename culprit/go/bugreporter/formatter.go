package bugreporter

import (
	"bytes"
	"strings"
	"text/template"

	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/culprit/go/job"
	"go.skia.org/culprit/go/skerr"
)

const (
	// LabelFound, LabelNotFound and LabelFailed are added to the bug when a
	// Job finishes.
	LabelFound    = "Culprit-Found"
	LabelNotFound = "Culprit-NotFound"
	LabelFailed   = "Culprit-Failed"

	// StatusAssigned is set on the bug when the author of a culprit is
	// known.
	StatusAssigned = "Assigned"

	startedTemplate = `Culprit finder job started.
{{ if .JobURL }}
  {{ .JobURL }}
{{ end }}
Looking for a change in behavior between:

  {{ .Start }}
  {{ .End }}
`

	completedTemplate = `{{ if .Job.Differences -}}
Found {{ len .Job.Differences }} significant {{ if eq (len .Job.Differences) 1 }}difference{{ else }}differences{{ end }}:
{{ range .Job.Differences }}
{{ if .Gap -}}
  Somewhere after {{ .Before }} up to {{ .After }}
  The changes in between could not be measured.
{{- else }}{{ with .Culprit -}}
  {{ .Subject }}
  By {{ .Author }} <{{ .AuthorEmail }}> on {{ .Timestamp.Format "2006-01-02" }}
  {{ .URL }}
{{- else -}}
  {{ .Commit }}
{{- end }}{{ end }}
  p-value {{ printf "%.4g" .PValue }}
{{ end -}}
{{ else -}}
Could not reproduce a difference between {{ .Start }} and {{ .End }}.
{{ end -}}
{{ if .JobURL }}
Details: {{ .JobURL }}
{{ end }}`

	failedTemplate = `Culprit finder job failed: {{ .Job.FailureReason }}
{{ if .JobURL }}
Details: {{ .JobURL }}
{{ end }}`
)

// TemplateContext is passed to the comment templates.
type TemplateContext struct {
	Job    *job.Job
	JobURL string
	Start  *change.Change
	End    *change.Change
}

// Formatter builds the Comment for each kind of Job notification.
type Formatter struct {
	jobURLTemplate string
	templates      map[job.Notification]*template.Template
}

// NewFormatter returns a new Formatter. The string "{id}" in jobURLTemplate
// is replaced with the Job ID. An empty jobURLTemplate leaves links out.
func NewFormatter(jobURLTemplate string) (*Formatter, error) {
	sources := map[job.Notification]string{
		job.NotifyStarted:   startedTemplate,
		job.NotifyCompleted: completedTemplate,
		job.NotifyFailed:    failedTemplate,
	}
	templates := map[job.Notification]*template.Template{}
	for n, src := range sources {
		t, err := template.New(string(n)).Parse(src)
		if err != nil {
			return nil, skerr.Wrapf(err, "compiling %s template", n)
		}
		templates[n] = t
	}
	return &Formatter{
		jobURLTemplate: jobURLTemplate,
		templates:      templates,
	}, nil
}

// Format returns the Comment for notification n about j.
func (f *Formatter) Format(j *job.Job, n job.Notification) (*Comment, error) {
	t, ok := f.templates[n]
	if !ok {
		return nil, skerr.Fmt("unknown notification %q", n)
	}
	if len(j.Changes) < 2 {
		return nil, skerr.Fmt("job %s has %d changes", j.ID, len(j.Changes))
	}
	templateContext := &TemplateContext{
		Job:   j,
		Start: j.Changes[0],
		End:   j.Changes[len(j.Changes)-1],
	}
	if f.jobURLTemplate != "" {
		templateContext.JobURL = strings.ReplaceAll(f.jobURLTemplate, "{id}", j.ID)
	}
	var body bytes.Buffer
	if err := t.Execute(&body, templateContext); err != nil {
		return nil, skerr.Wrapf(err, "formatting %s comment", n)
	}

	c := &Comment{Text: body.String()}
	switch n {
	case job.NotifyCompleted:
		if len(j.Differences) == 0 {
			c.Labels = []string{LabelNotFound}
			break
		}
		c.Labels = []string{LabelFound}
		c.Owner, c.CC = culpritAuthors(j.Differences)
		if c.Owner != "" {
			c.Status = StatusAssigned
		}
	case job.NotifyFailed:
		c.Labels = []string{LabelFailed}
	}
	return c, nil
}

// culpritAuthors returns the author of the first culprit as the owner and
// every culprit author as CC, without duplicates. Differences spanning a
// range of commits blame nobody.
func culpritAuthors(diffs []*job.Difference) (string, []string) {
	owner := ""
	var cc []string
	seen := map[string]bool{}
	for _, d := range diffs {
		if d.Gap || d.Culprit == nil || d.Culprit.AuthorEmail == "" {
			continue
		}
		email := d.Culprit.AuthorEmail
		if owner == "" {
			owner = email
		}
		if !seen[email] {
			seen[email] = true
			cc = append(cc, email)
		}
	}
	return owner, cc
}
