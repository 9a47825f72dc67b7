package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/trajexplore/trajexplore/common"
	"github.com/trajexplore/trajexplore/errs"
	"github.com/trajexplore/trajexplore/leaf"
	"github.com/trajexplore/trajexplore/tree"
)

// annotationSoftCapBytes is the soft cap on a single annotation value.
// Annotations are for small metadata, not bulk data; this package never
// rejects an oversized value, only logs about it.
const annotationSoftCapBytes = 256

var annotationLogger = common.ServiceLogger("storage")

// warnOversizedAnnotations logs one warning per annotation key on
// fullName whose rendered value exceeds annotationSoftCapBytes.
func warnOversizedAnnotations(fullName string, annotations map[string]any) {
	for k, v := range annotations {
		s := fmt.Sprintf("%v", v)
		if len(s) > annotationSoftCapBytes {
			annotationLogger.WithFields(map[string]interface{}{
				"node": fullName, "key": k, "size": len(s),
			}).Warn("annotation value exceeds the soft cap; annotations are for small metadata, not bulk data")
		}
	}
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(blob []byte, v any) error {
	if len(blob) == 0 {
		return nil
	}
	return gob.NewDecoder(bytes.NewReader(blob)).Decode(v)
}

// groupRecord builds the metadata-only record for a Group.
func groupRecord(g *tree.Group, createdAt time.Time) nodeRecord {
	warnOversizedAnnotations(g.FullName(), g.Annotations())
	return nodeRecord{
		Kind:        string(leaf.KindGroup),
		Name:        g.Name(),
		FullName:    g.FullName(),
		Annotations: g.Annotations(),
		CreatedAt:   createdAt,
	}
}

// linkRecord builds the record for a Link; targetFullName must already
// have been computed by the caller (a Link itself carries no full name).
func linkRecord(l *tree.Link, fullName, targetFullName string, createdAt time.Time) nodeRecord {
	return nodeRecord{
		Kind:       string(leaf.KindLink),
		Name:       l.Name(),
		FullName:   fullName,
		CreatedAt:  createdAt,
		LinkTarget: targetFullName,
	}
}

// parameterRecord encodes p for persistence. Array parameters get the
// required dedup treatment; scalar and pickle parameters
// reuse their own Serialize, which already bundles default, range and
// lock state.
func parameterRecord(p leaf.Parameter, explored bool, createdAt time.Time) (nodeRecord, error) {
	warnOversizedAnnotations(p.FullName(), p.Annotations())
	rec := nodeRecord{
		Kind:        string(p.Kind()),
		Name:        p.Name(),
		FullName:    p.FullName(),
		Comment:     p.Comment(),
		Annotations: p.Annotations(),
		CreatedAt:   createdAt,
		Locked:      p.Locked(),
		Explored:    explored,
	}

	ap, isArray := p.(*leaf.ArrayParameter)
	if !isArray {
		blob, err := p.Serialize()
		if err != nil {
			return nodeRecord{}, fmt.Errorf("storage: serialize %s: %w", p.FullName(), err)
		}
		rec.DataBlob = blob
		if pp, ok := p.(*leaf.PickleParameter); ok {
			rec.Protocol = pp.Protocol()
		}
		return rec, nil
	}

	defaultBlob, err := gobEncode(ap.GetUnlocked())
	if err != nil {
		return nodeRecord{}, fmt.Errorf("storage: encode default for %s: %w", p.FullName(), err)
	}
	rec.DataBlob = defaultBlob

	if ap.HasRange() {
		raw := make([]any, ap.RangeLength())
		for k := range raw {
			v, err := ap.RangeValue(k)
			if err != nil {
				return nodeRecord{}, err
			}
			raw[k] = v
		}
		pool, indices := leaf.DedupRange(raw)
		poolBlob, err := gobEncode(pool)
		if err != nil {
			return nodeRecord{}, fmt.Errorf("storage: encode pool for %s: %w", p.FullName(), err)
		}
		rec.PoolBlob = poolBlob
		rec.Indices = indices
	}
	return rec, nil
}

// resultRecord encodes a Result leaf for persistence.
func resultRecord(r leaf.Result, createdAt time.Time) (nodeRecord, error) {
	warnOversizedAnnotations(r.FullName(), r.Annotations())
	blob, err := r.Serialize()
	if err != nil {
		return nodeRecord{}, fmt.Errorf("storage: serialize %s: %w", r.FullName(), err)
	}
	return nodeRecord{
		Kind:        string(leaf.KindResult),
		Name:        r.Name(),
		FullName:    r.FullName(),
		Comment:     r.Comment(),
		Annotations: r.Annotations(),
		CreatedAt:   createdAt,
		DataBlob:    blob,
	}, nil
}

// decodeParameter reconstructs the concrete Parameter variant rec
// describes. comment is supplied separately by the caller, who has
// already resolved comment-dedup against the lowest-index
// occurrence.
func decodeParameter(rec nodeRecord, comment string) (leaf.Parameter, error) {
	var p leaf.Parameter
	switch leaf.Kind(rec.Kind) {
	case leaf.KindScalarParameter:
		sp, err := leaf.NewScalarParameter(rec.Name, false)
		if err != nil {
			return nil, err
		}
		if err := sp.Deserialize(rec.DataBlob); err != nil {
			return nil, fmt.Errorf("storage: deserialize %s: %w", rec.FullName, err)
		}
		p = sp
	case leaf.KindPickleParameter:
		pp, err := leaf.NewPickleParameter(rec.Name, rec.Protocol, nil)
		if err != nil {
			return nil, err
		}
		if err := pp.Deserialize(rec.DataBlob); err != nil {
			return nil, fmt.Errorf("storage: deserialize %s: %w", rec.FullName, err)
		}
		p = pp
	case leaf.KindArrayParameter:
		var defaultValue any
		if err := gobDecode(rec.DataBlob, &defaultValue); err != nil {
			return nil, fmt.Errorf("storage: decode default for %s: %w", rec.FullName, err)
		}
		ap, err := leaf.NewArrayParameter(rec.Name, defaultValue)
		if err != nil {
			return nil, err
		}
		if len(rec.PoolBlob) > 0 {
			var pool []any
			if err := gobDecode(rec.PoolBlob, &pool); err != nil {
				return nil, fmt.Errorf("storage: decode pool for %s: %w", rec.FullName, err)
			}
			values, err := leaf.ReconstructRange(pool, rec.Indices)
			if err != nil {
				return nil, err
			}
			if err := ap.SetRange(values); err != nil {
				return nil, err
			}
		}
		if rec.Locked {
			ap.Lock()
		}
		p = ap
	default:
		return nil, fmt.Errorf("%w: unknown parameter kind %q", errs.ErrSchema, rec.Kind)
	}
	p.SetFullName(rec.FullName)
	p.SetComment(comment)
	for k, v := range rec.Annotations {
		p.SetAnnotation(k, v)
	}
	return p, nil
}

// decodeResult reconstructs a Result leaf from rec.
func decodeResult(rec nodeRecord, comment string) (leaf.Result, error) {
	r := leaf.NewResult(rec.Name)
	if err := r.Deserialize(rec.DataBlob); err != nil {
		return nil, fmt.Errorf("storage: deserialize %s: %w", rec.FullName, err)
	}
	r.SetFullName(rec.FullName)
	r.SetComment(comment)
	for k, v := range rec.Annotations {
		r.SetAnnotation(k, v)
	}
	return r, nil
}

// shortValueRepr renders a short human-readable value summary for the
// parameters/config/explored_parameters overview tables.
func shortValueRepr(p leaf.Parameter) string {
	v := p.GetUnlocked()
	s := fmt.Sprintf("%v", v)
	if len(s) > 64 {
		s = s[:61] + "..."
	}
	return s
}
