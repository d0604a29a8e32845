package model

import (
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// DefaultPredictBatch is the number of samples run through the inference graph
// at once.
const DefaultPredictBatch = 64

// lossEpsilon keeps log(p) finite when a softmax output underflows to zero.
const lossEpsilon = 1e-7

type param struct {
	name  string
	value *tensor.Dense
}

// Network is a sequential convolutional classifier with its learnable weights.
//
// Weights live outside any expression graph so that the same values can back a
// training graph (with dropout) and an inference graph (without). A Network is
// not safe for concurrent use.
type Network struct {
	arch       Architecture
	categories []string
	shapes     []Shape

	params []*param
	// layerParams maps a learnable layer index to its kernel and bias.
	layerParams map[int][2]*param

	predictBatch int
}

// New creates a network with Glorot-uniform kernels and zero biases.
// categories names the classes in label order and must match arch.Classes.
func New(arch Architecture, categories []string) (*Network, error) {
	shapes, err := arch.OutputShapes()
	if err != nil {
		return nil, fmt.Errorf("invalid architecture: %w", err)
	}
	if len(categories) != arch.Classes {
		return nil, fmt.Errorf("%d categories for %d classes", len(categories), arch.Classes)
	}

	n := &Network{
		arch:         arch,
		categories:   append([]string(nil), categories...),
		shapes:       shapes,
		layerParams:  make(map[int][2]*param),
		predictBatch: DefaultPredictBatch,
	}

	glorot := gorgonia.GlorotU(1.0)
	in := Shape{arch.Channels, arch.ImageSize, arch.ImageSize}
	for i, l := range arch.Layers {
		kShape, bShape := paramShapes(l, in)
		if kShape != nil {
			kernel := &param{
				name: fmt.Sprintf("layer%02d_kernel", i),
				value: tensor.New(
					tensor.WithShape(kShape...),
					tensor.WithBacking(glorot(tensor.Float32, kShape...)),
				),
			}
			bias := &param{
				name:  fmt.Sprintf("layer%02d_bias", i),
				value: tensor.New(tensor.WithShape(bShape...), tensor.Of(tensor.Float32)),
			}
			n.params = append(n.params, kernel, bias)
			n.layerParams[i] = [2]*param{kernel, bias}
		}
		in = shapes[i]
	}
	return n, nil
}

// Architecture returns the network's layer description.
func (n *Network) Architecture() Architecture {
	return n.arch
}

// Categories returns the class names in label order.
func (n *Network) Categories() []string {
	return append([]string(nil), n.categories...)
}

// OutputShapes returns the per-layer output shapes.
func (n *Network) OutputShapes() []Shape {
	return n.shapes
}

// SetPredictBatch changes the inference batch size.
func (n *Network) SetPredictBatch(size int) {
	if size > 0 {
		n.predictBatch = size
	}
}

// graph is one compiled view of the network.
type graph struct {
	g          *gorgonia.ExprGraph
	batch      int
	x          *gorgonia.Node
	y          *gorgonia.Node
	probs      *gorgonia.Node
	cost       *gorgonia.Node
	learnables gorgonia.Nodes
	nodeParams []*param

	probsVal gorgonia.Value
	costVal  gorgonia.Value
}

// buildGraph wires the layers for a fixed batch size. Training graphs apply
// dropout and add a sparse categorical cross-entropy cost with gradients for
// every learnable.
func (n *Network) buildGraph(batch int, training bool) (*graph, error) {
	a := n.arch
	gr := &graph{g: gorgonia.NewGraph(), batch: batch}

	gr.x = gorgonia.NewTensor(gr.g, tensor.Float32, 4,
		gorgonia.WithShape(batch, a.Channels, a.ImageSize, a.ImageSize),
		gorgonia.WithName("x"))

	cur := gr.x
	var err error
	for i, l := range a.Layers {
		switch l.Kind {
		case KindConv2D:
			w, b := n.bind(gr, i)
			if cur, err = gorgonia.Conv2d(cur, w, tensor.Shape{l.Kernel, l.Kernel},
				[]int{0, 0}, []int{l.Stride, l.Stride}, []int{1, 1}); err != nil {
				return nil, fmt.Errorf("layer %d conv2d: %w", i, err)
			}
			if cur, err = gorgonia.BroadcastAdd(cur, b, nil, []byte{0, 2, 3}); err != nil {
				return nil, fmt.Errorf("layer %d bias: %w", i, err)
			}
			if cur, err = activate(cur, l.Activation); err != nil {
				return nil, fmt.Errorf("layer %d activation: %w", i, err)
			}

		case KindDropout:
			if !training || l.Rate == 0 {
				continue
			}
			if cur, err = gorgonia.Dropout(cur, l.Rate); err != nil {
				return nil, fmt.Errorf("layer %d dropout: %w", i, err)
			}

		case KindFlatten:
			if cur, err = gorgonia.Reshape(cur, tensor.Shape{batch, n.shapes[i][0]}); err != nil {
				return nil, fmt.Errorf("layer %d flatten: %w", i, err)
			}

		case KindDense:
			w, b := n.bind(gr, i)
			if cur, err = gorgonia.Mul(cur, w); err != nil {
				return nil, fmt.Errorf("layer %d dense: %w", i, err)
			}
			if cur, err = gorgonia.BroadcastAdd(cur, b, nil, []byte{0}); err != nil {
				return nil, fmt.Errorf("layer %d bias: %w", i, err)
			}
			if cur, err = activate(cur, l.Activation); err != nil {
				return nil, fmt.Errorf("layer %d activation: %w", i, err)
			}
		}
	}
	gr.probs = cur
	gorgonia.Read(gr.probs, &gr.probsVal)

	if !training {
		return gr, nil
	}

	gr.y = gorgonia.NewMatrix(gr.g, tensor.Float32,
		gorgonia.WithShape(batch, a.Classes),
		gorgonia.WithName("y"))

	eps := gorgonia.NewConstant(float32(lossEpsilon))
	logp := gorgonia.Must(gorgonia.Log(gorgonia.Must(gorgonia.Add(gr.probs, eps))))
	picked := gorgonia.Must(gorgonia.HadamardProd(logp, gr.y))
	perSample := gorgonia.Must(gorgonia.Sum(picked, 1))
	gr.cost = gorgonia.Must(gorgonia.Neg(gorgonia.Must(gorgonia.Mean(perSample))))
	gorgonia.Read(gr.cost, &gr.costVal)

	if _, err := gorgonia.Grad(gr.cost, gr.learnables...); err != nil {
		return nil, fmt.Errorf("failed to differentiate cost: %w", err)
	}
	return gr, nil
}

// bind adds the kernel and bias of layer i to the graph.
func (n *Network) bind(gr *graph, i int) (w, b *gorgonia.Node) {
	ps := n.layerParams[i]
	node := func(p *param) *gorgonia.Node {
		shape := p.value.Shape()
		nd := gorgonia.NewTensor(gr.g, tensor.Float32, shape.Dims(),
			gorgonia.WithShape(shape...),
			gorgonia.WithName(p.name),
			gorgonia.WithValue(p.value))
		gr.learnables = append(gr.learnables, nd)
		gr.nodeParams = append(gr.nodeParams, p)
		return nd
	}
	return node(ps[0]), node(ps[1])
}

func activate(x *gorgonia.Node, activation string) (*gorgonia.Node, error) {
	switch activation {
	case ActivationReLU:
		return gorgonia.Rectify(x)
	case ActivationSoftmax:
		return gorgonia.SoftMax(x)
	default:
		return x, nil
	}
}

// syncWeights copies the values held by a graph's learnables back into the
// network's weights.
func (n *Network) syncWeights(gr *graph) error {
	for i, nd := range gr.learnables {
		src, ok := nd.Value().Data().([]float32)
		if !ok {
			return fmt.Errorf("learnable %s holds %T", nd.Name(), nd.Value().Data())
		}
		dst := gr.nodeParams[i].value.Data().([]float32)
		copy(dst, src)
	}
	return nil
}
