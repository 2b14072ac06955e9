package spec

import (
	"github.com/roasbeef/p4review/internal/p4"
)

// NewJobID asks the server to assign the next job number on save.
const NewJobID = "new"

// Job is a job (defect) spec. Fields from a customised jobspec that have no
// struct field are kept in Fields.
type Job struct {
	Job         string `p4:"Job" validate:"required"`
	Status      string `p4:"Status"`
	User        string `p4:"User"`
	Date        string `p4:"Date"`
	Description string `p4:"Description" validate:"required"`

	Fields map[string]string `p4:"-"`
}

var jobKnownFields = map[string]bool{
	"Job": true, "Status": true, "User": true, "Date": true,
	"Description": true,
}

// ID implements Entity.
func (j *Job) ID() string { return j.Job }

// Validate implements Entity.
func (j *Job) Validate() error {
	verr := validateStruct(j)
	if verr == nil {
		verr = &ValidationError{}
	}
	if j.Job != NewJobID && j.Job != "" {
		if err := ValidateID("Job", j.Job); err != nil {
			verr.Merge(err.(*ValidationError))
		}
	}

	return verr.OrNil()
}

func (j *Job) kind() kind {
	return kind{
		form:   "job",
		list:   "jobs",
		listID: "Job",
		exists: func(id string) []string {
			return []string{"-e", "Job=" + id, "-m", "1"}
		},
	}
}

func (j *Job) fromRecord(r p4.Record) error {
	*j = Job{
		Job:         r.Get("Job"),
		Status:      r.Get("Status"),
		User:        r.Get("User"),
		Date:        r.Get("Date"),
		Description: r.Get("Description"),
	}
	for k, v := range r {
		if jobKnownFields[k] {
			continue
		}
		if j.Fields == nil {
			j.Fields = make(map[string]string)
		}
		j.Fields[k] = v
	}

	return nil
}

func (j *Job) toRecord() p4.Record {
	r := p4.Record{
		"Job":         j.Job,
		"Description": j.Description,
	}
	setIf(r, "Status", j.Status)
	setIf(r, "User", j.User)
	setIf(r, "Date", j.Date)
	for k, v := range j.Fields {
		r[k] = v
	}

	return r
}

func (j *Job) listArgs(opts FetchAllOptions) ([]string, error) {
	err := opts.unsupported("job", "Max", "NameFilter", "Files")
	if err != nil {
		return nil, err
	}

	args := opts.maxArgs()
	if opts.NameFilter != "" {
		args = append(args, "-e", opts.NameFilter)
	}
	args = append(args, opts.Files...)

	return args, nil
}
