package qdrant

import (
	pb "github.com/qdrant/go-client/qdrant"

	"github.com/totenbilder/imagesearch/pkg/index"
)

func payloadTo(p index.Payload) map[string]*pb.Value {
	out := map[string]*pb.Value{
		index.FieldFilename: pb.NewValueString(p.Filename),
		index.FieldImageURL: pb.NewValueString(p.ImageURL),
	}
	if p.NID != nil {
		out[index.FieldNID] = pb.NewValueInt(*p.NID)
	}
	if p.Delta != nil {
		out[index.FieldDelta] = pb.NewValueInt(*p.Delta)
	}
	return out
}

func patchTo(p index.Patch) map[string]*pb.Value {
	out := map[string]*pb.Value{}
	if p.NID != nil {
		out[index.FieldNID] = pb.NewValueInt(*p.NID)
	}
	if p.Delta != nil {
		out[index.FieldDelta] = pb.NewValueInt(*p.Delta)
	}
	return out
}

func payloadFrom(m map[string]*pb.Value) index.Payload {
	return index.Payload{
		Filename: m[index.FieldFilename].GetStringValue(),
		ImageURL: m[index.FieldImageURL].GetStringValue(),
		NID:      intValue(m[index.FieldNID]),
		Delta:    intValue(m[index.FieldDelta]),
	}
}

// intValue accepts integer and whole double payloads; older writers stored
// numbers as doubles.
func intValue(v *pb.Value) *int64 {
	if v == nil {
		return nil
	}
	switch k := v.GetKind().(type) {
	case *pb.Value_IntegerValue:
		n := k.IntegerValue
		return &n
	case *pb.Value_DoubleValue:
		n := int64(k.DoubleValue)
		return &n
	default:
		return nil
	}
}

func vectorOf(v *pb.VectorsOutput) []float32 {
	out := v.GetVector()
	if d := out.GetDense(); d != nil {
		return d.GetData()
	}
	return out.GetData()
}

func filterTo(f index.Filter) *pb.Filter {
	switch f.Delta {
	case index.DeltaZero:
		return &pb.Filter{Must: []*pb.Condition{pb.NewMatchInt(index.FieldDelta, 0)}}
	case index.DeltaPositive:
		return &pb.Filter{Must: []*pb.Condition{pb.NewRange(index.FieldDelta, &pb.Range{Gt: pb.PtrOf(0.0)})}}
	default:
		return nil
	}
}
