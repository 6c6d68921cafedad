package acer

import (
	"errors"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
	"gonum.org/v1/gonum/floats"
)

// Default RMSProp settings.
const (
	DefaultStepSize  = 1e-4
	DefaultDecayRate = 0.99
	DefaultDamping   = 1e-8
)

var errBadMomentType = errors.New("unexpected moment vector type")

func init() {
	var r RMSProp
	serializer.RegisterTypedDeserializer(r.SerializerType(), DeserializeRMSProp)
}

// RMSProp is an anysgd.Transformer implementing the
// RMSProp update rule with checkpointable state.
//
// Unlike the stock anysgd transformer, its second-moment
// accumulators can be serialized and restored, so the
// shared optimizer state survives across training runs.
type RMSProp struct {
	// StepSize is the learning rate applied by the
	// parameter server.
	//
	// If 0, DefaultStepSize is used.
	StepSize float64

	// DecayRate is the decay of the second-moment
	// accumulator.
	//
	// If 0, DefaultDecayRate is used.
	DecayRate float64

	// Damping is added to the denominator to avoid
	// division by zero.
	//
	// If 0, DefaultDamping is used.
	Damping float64

	params  []*anydiff.Var
	moments []anyvec.Vector
}

// DeserializeRMSProp deserializes an RMSProp instance.
//
// The restored accumulators are re-bound to parameters
// positionally, so the model must be constructed the same
// way it was when the state was saved.
func DeserializeRMSProp(d []byte) (rms *RMSProp, err error) {
	defer essentials.AddCtxTo("deserialize RMSProp", &err)

	var stepSize, decayRate, damping float64
	var momentData []byte
	if err := serializer.DeserializeAny(d, &stepSize, &decayRate, &damping,
		&momentData); err != nil {
		return nil, err
	}
	saved, err := serializer.DeserializeSlice(momentData)
	if err != nil {
		return nil, err
	}
	res := &RMSProp{
		StepSize:  stepSize,
		DecayRate: decayRate,
		Damping:   damping,
	}
	for _, obj := range saved {
		vec, ok := obj.(*anyvecsave.S)
		if !ok {
			return nil, essentials.AddCtx("deserialize RMSProp",
				errBadMomentType)
		}
		res.moments = append(res.moments, vec.Vector)
	}
	return res, nil
}

// Bind attaches the transformer to a parameter list.
//
// The order of the parameters determines the layout of
// the serialized state.
// Bind panics if previously restored state does not match
// the parameter shapes.
func (r *RMSProp) Bind(params []*anydiff.Var) {
	if r.moments != nil {
		if len(r.moments) != len(params) {
			panic("acer: optimizer state has wrong parameter count")
		}
		for i, m := range r.moments {
			if m.Len() != params[i].Vector.Len() {
				panic("acer: optimizer state has wrong parameter size")
			}
		}
	}
	r.params = params
}

// Transform applies the RMSProp rule to a gradient,
// modifying it in place and returning it.
func (r *RMSProp) Transform(g anydiff.Grad) anydiff.Grad {
	if r.params == nil {
		panic("acer: RMSProp used before Bind")
	}
	if r.moments == nil {
		r.moments = make([]anyvec.Vector, len(r.params))
	}
	for i, param := range r.params {
		vec, ok := g[param]
		if !ok {
			continue
		}
		c := vec.Creator()
		if r.moments[i] == nil {
			r.moments[i] = c.MakeVector(vec.Len())
		}
		moment := r.moments[i]
		moment.Scale(c.MakeNumeric(r.decayRate()))
		sq := vec.Copy()
		sq.Mul(vec)
		sq.Scale(c.MakeNumeric(1 - r.decayRate()))
		moment.Add(sq)

		denom := moment.Copy()
		anyvec.Pow(denom, c.MakeNumeric(0.5))
		denom.AddScalar(c.MakeNumeric(r.damping()))
		vec.Div(denom)
	}
	return g
}

// SerializerType is the unique ID used to serialize an
// RMSProp with the serializer package.
func (r *RMSProp) SerializerType() string {
	return "acer-agent.RMSProp"
}

// Serialize serializes the settings and accumulators.
func (r *RMSProp) Serialize() ([]byte, error) {
	var saved []serializer.Serializer
	for _, m := range r.moments {
		saved = append(saved, &anyvecsave.S{Vector: m})
	}
	momentData, err := serializer.SerializeSlice(saved)
	if err != nil {
		return nil, err
	}
	return serializer.SerializeAny(r.StepSize, r.DecayRate, r.Damping,
		momentData)
}

func (r *RMSProp) stepSize() float64 {
	if r.StepSize == 0 {
		return DefaultStepSize
	}
	return r.StepSize
}

func (r *RMSProp) decayRate() float64 {
	if r.DecayRate == 0 {
		return DefaultDecayRate
	}
	return r.DecayRate
}

func (r *RMSProp) damping() float64 {
	if r.Damping == 0 {
		return DefaultDamping
	}
	return r.Damping
}

// GradNorm computes the Euclidean norm of a gradient,
// useful as a training diagnostic.
func GradNorm(g anydiff.Grad) float64 {
	var sum float64
	for _, vec := range g {
		data := vectorData(vec)
		sum += floats.Dot(data, data)
	}
	return math.Sqrt(sum)
}
