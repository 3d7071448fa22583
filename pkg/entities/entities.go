package entities

import (
	"context"
	"strings"

	"github.com/aretw0/lims/pkg/core"
)

// Absent scalar fields read as the empty string. Use the embedded
// core.Entity accessors to tell an empty element from a missing one.

func text(ctx context.Context, e *core.Entity, field string) (string, error) {
	s, _, err := e.Text(ctx, field)
	return s, err
}

func ref[T any](ctx context.Context, e *core.Entity, field string, wrap func(*core.Entity) T) (T, bool, error) {
	r, ok, err := e.Ref(ctx, field)
	if err != nil || !ok {
		var zero T
		return zero, false, err
	}
	return wrap(r), true, nil
}

func wrapLab(e *core.Entity) Lab                     { return Lab{e} }
func wrapResearcher(e *core.Entity) Researcher       { return Researcher{e} }
func wrapProject(e *core.Entity) Project             { return Project{e} }
func wrapSample(e *core.Entity) Sample               { return Sample{e} }
func wrapContainertype(e *core.Entity) Containertype { return Containertype{e} }
func wrapContainer(e *core.Entity) Container         { return Container{e} }
func wrapProcesstype(e *core.Entity) Processtype     { return Processtype{e} }
func wrapProcess(e *core.Entity) Process             { return Process{e} }
func wrapArtifact(e *core.Entity) Artifact           { return Artifact{e} }

// Lab is a container of researchers.
type Lab struct{ *core.Entity }

func (l Lab) Name(ctx context.Context) (string, error)    { return text(ctx, l.Entity, "name") }
func (l Lab) Website(ctx context.Context) (string, error) { return text(ctx, l.Entity, "website") }

func (l Lab) BillingAddress(ctx context.Context) (map[string]string, error) {
	return l.StringMap(ctx, "billing-address")
}

func (l Lab) ShippingAddress(ctx context.Context) (map[string]string, error) {
	return l.StringMap(ctx, "shipping-address")
}

func (l Lab) UDF(ctx context.Context) (*core.UDFDictionary, error) { return l.UDFs(ctx, "udf") }
func (l Lab) UDT(ctx context.Context) (*core.UDFDictionary, error) { return l.UDFs(ctx, "udt") }

// Researcher is a person: client scientist or lab personnel.
type Researcher struct{ *core.Entity }

func (r Researcher) FirstName(ctx context.Context) (string, error) {
	return text(ctx, r.Entity, "first-name")
}
func (r Researcher) LastName(ctx context.Context) (string, error) {
	return text(ctx, r.Entity, "last-name")
}
func (r Researcher) Phone(ctx context.Context) (string, error)    { return text(ctx, r.Entity, "phone") }
func (r Researcher) Fax(ctx context.Context) (string, error)      { return text(ctx, r.Entity, "fax") }
func (r Researcher) Email(ctx context.Context) (string, error)    { return text(ctx, r.Entity, "email") }
func (r Researcher) Initials(ctx context.Context) (string, error) { return text(ctx, r.Entity, "initials") }

// Name joins first and last name.
func (r Researcher) Name(ctx context.Context) (string, error) {
	first, err := r.FirstName(ctx)
	if err != nil {
		return "", err
	}
	last, err := r.LastName(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(first + " " + last), nil
}

func (r Researcher) Lab(ctx context.Context) (Lab, bool, error) {
	return ref(ctx, r.Entity, "lab", wrapLab)
}

func (r Researcher) UDF(ctx context.Context) (*core.UDFDictionary, error) { return r.UDFs(ctx, "udf") }
func (r Researcher) UDT(ctx context.Context) (*core.UDFDictionary, error) { return r.UDFs(ctx, "udt") }

// Project groups the samples submitted by a researcher.
type Project struct{ *core.Entity }

func (p Project) Name(ctx context.Context) (string, error) { return text(ctx, p.Entity, "name") }
func (p Project) OpenDate(ctx context.Context) (string, error) {
	return text(ctx, p.Entity, "open-date")
}
func (p Project) CloseDate(ctx context.Context) (string, error) {
	return text(ctx, p.Entity, "close-date")
}
func (p Project) InvoiceDate(ctx context.Context) (string, error) {
	return text(ctx, p.Entity, "invoice-date")
}

func (p Project) Researcher(ctx context.Context) (Researcher, bool, error) {
	return ref(ctx, p.Entity, "researcher", wrapResearcher)
}

func (p Project) UDF(ctx context.Context) (*core.UDFDictionary, error) { return p.UDFs(ctx, "udf") }
func (p Project) UDT(ctx context.Context) (*core.UDFDictionary, error) { return p.UDFs(ctx, "udt") }

// Sample is a customer's sample to be analyzed.
type Sample struct{ *core.Entity }

func (s Sample) Name(ctx context.Context) (string, error) { return text(ctx, s.Entity, "name") }
func (s Sample) SetName(ctx context.Context, name string) error {
	return s.Write(ctx, "name", name)
}
func (s Sample) DateReceived(ctx context.Context) (string, error) {
	return text(ctx, s.Entity, "date-received")
}
func (s Sample) DateCompleted(ctx context.Context) (string, error) {
	return text(ctx, s.Entity, "date-completed")
}

func (s Sample) Project(ctx context.Context) (Project, bool, error) {
	return ref(ctx, s.Entity, "project", wrapProject)
}

func (s Sample) Submitter(ctx context.Context) (Researcher, bool, error) {
	return ref(ctx, s.Entity, "submitter", wrapResearcher)
}

func (s Sample) Artifact(ctx context.Context) (Artifact, bool, error) {
	return ref(ctx, s.Entity, "artifact", wrapArtifact)
}

func (s Sample) UDF(ctx context.Context) (*core.UDFDictionary, error) { return s.UDFs(ctx, "udf") }
func (s Sample) UDT(ctx context.Context) (*core.UDFDictionary, error) { return s.UDFs(ctx, "udt") }

// Containertype describes a kind of container for analytes.
type Containertype struct{ *core.Entity }

func (c Containertype) Name(ctx context.Context) (string, error) { return text(ctx, c.Entity, "name") }

func (c Containertype) CalibrantWells(ctx context.Context) ([]string, error) {
	return c.Strings(ctx, "calibrant-wells")
}

func (c Containertype) UnavailableWells(ctx context.Context) ([]string, error) {
	return c.Strings(ctx, "unavailable-wells")
}

func (c Containertype) XDimension(ctx context.Context) (core.Dimension, error) {
	d, _, err := c.Dimension(ctx, "x-dimension")
	return d, err
}

func (c Containertype) YDimension(ctx context.Context) (core.Dimension, error) {
	d, _, err := c.Dimension(ctx, "y-dimension")
	return d, err
}

// Container holds analyte artifacts at named positions.
type Container struct{ *core.Entity }

func (c Container) Name(ctx context.Context) (string, error)  { return text(ctx, c.Entity, "name") }
func (c Container) State(ctx context.Context) (string, error) { return text(ctx, c.Entity, "state") }

func (c Container) Type(ctx context.Context) (Containertype, bool, error) {
	return ref(ctx, c.Entity, "type", wrapContainertype)
}

func (c Container) OccupiedWells(ctx context.Context) (int, error) {
	n, _, err := c.Int(ctx, "occupied-wells")
	return n, err
}

// Placements maps positions to the artifacts placed there. The artifacts
// are not fetched.
func (c Container) Placements(ctx context.Context) (map[string]Artifact, error) {
	m, err := c.Entity.Placements(ctx, "placements")
	if err != nil {
		return nil, err
	}
	out := make(map[string]Artifact, len(m))
	for pos, e := range m {
		out[pos] = Artifact{e}
	}
	return out, nil
}

// GetPlacements is Placements with every placed artifact fetched in a
// single batch call.
func (c Container) GetPlacements(ctx context.Context) (map[string]Artifact, error) {
	placements, err := c.Placements(ctx)
	if err != nil {
		return nil, err
	}
	batch := make([]*core.Entity, 0, len(placements))
	for _, a := range placements {
		batch = append(batch, a.Entity)
	}
	if err := c.Session().Batch(ctx, batch); err != nil {
		return nil, err
	}
	return placements, nil
}

func (c Container) UDF(ctx context.Context) (*core.UDFDictionary, error) { return c.UDFs(ctx, "udf") }
func (c Container) UDT(ctx context.Context) (*core.UDFDictionary, error) { return c.UDFs(ctx, "udt") }

// Processtype is the template a process is an instance of.
type Processtype struct{ *core.Entity }

func (p Processtype) Name(ctx context.Context) (string, error) { return text(ctx, p.Entity, "name") }

// Process is a step executed on input artifacts, producing outputs.
type Process struct{ *core.Entity }

func (p Process) Type(ctx context.Context) (Processtype, bool, error) {
	return ref(ctx, p.Entity, "type", wrapProcesstype)
}

func (p Process) Technician(ctx context.Context) (Researcher, bool, error) {
	return ref(ctx, p.Entity, "technician", wrapResearcher)
}

func (p Process) DateRun(ctx context.Context) (string, error) {
	return text(ctx, p.Entity, "date-run")
}
func (p Process) ProtocolName(ctx context.Context) (string, error) {
	return text(ctx, p.Entity, "protocol-name")
}

func (p Process) UDF(ctx context.Context) (*core.UDFDictionary, error) { return p.UDFs(ctx, "udf") }
func (p Process) UDT(ctx context.Context) (*core.UDFDictionary, error) { return p.UDFs(ctx, "udt") }

// Artifact is any process input or output: an analyte or a file.
type Artifact struct{ *core.Entity }

func (a Artifact) Name(ctx context.Context) (string, error) { return text(ctx, a.Entity, "name") }
func (a Artifact) Type(ctx context.Context) (string, error) { return text(ctx, a.Entity, "type") }
func (a Artifact) OutputType(ctx context.Context) (string, error) {
	return text(ctx, a.Entity, "output-type")
}
func (a Artifact) Volume(ctx context.Context) (string, error) { return text(ctx, a.Entity, "volume") }
func (a Artifact) Concentration(ctx context.Context) (string, error) {
	return text(ctx, a.Entity, "concentration")
}
func (a Artifact) QCFlag(ctx context.Context) (string, error) { return text(ctx, a.Entity, "qc-flag") }
func (a Artifact) WorkingFlag(ctx context.Context) (string, error) {
	return text(ctx, a.Entity, "working-flag")
}

// State returns the state parameter of the artifact URI, if any.
func (a Artifact) State(ctx context.Context) (string, bool, error) {
	return a.Text(ctx, "state")
}

// SetState rewrites the state parameter. An empty state removes it.
func (a Artifact) SetState(ctx context.Context, state string) error {
	if state == "" {
		return a.Write(ctx, "state", nil)
	}
	return a.Write(ctx, "state", state)
}

func (a Artifact) ParentProcess(ctx context.Context) (Process, bool, error) {
	return ref(ctx, a.Entity, "parent-process", wrapProcess)
}

// Location returns the container and position holding the artifact.
func (a Artifact) Location(ctx context.Context) (Container, string, bool, error) {
	loc, ok, err := a.Entity.Location(ctx, "location")
	if err != nil || !ok || loc.Container == nil {
		return Container{}, "", false, err
	}
	return Container{loc.Container}, loc.Position, true, nil
}

func (a Artifact) Samples(ctx context.Context) ([]Sample, error) {
	refs, err := a.Refs(ctx, "samples")
	if err != nil {
		return nil, err
	}
	out := make([]Sample, 0, len(refs))
	for _, e := range refs {
		out = append(out, Sample{e})
	}
	return out, nil
}

func (a Artifact) UDF(ctx context.Context) (*core.UDFDictionary, error) { return a.UDFs(ctx, "udf") }
