package predict

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
)

// Layer widths of the pass/fail network. Small on purpose: educational
// datasets rarely exceed a few thousand enrollments.
var defaultLayerSizes = []int{NumFeatures, 16, 8, 4, 1}

// probEpsilon keeps log terms finite in the cross-entropy loss.
const probEpsilon = 1e-7

// Network is a feed-forward binary classifier with ReLU hidden layers and a
// sigmoid output.
type Network struct {
	sizes   []int
	weights [][][]float64 // [layer][out][in]
	biases  [][]float64   // [layer][out]
}

// NewNetwork creates a network with He-initialized weights.
func NewNetwork(sizes []int, rng *rand.Rand) *Network {
	n := &Network{sizes: append([]int(nil), sizes...)}

	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		std := math.Sqrt(2.0 / float64(in))

		w := make([][]float64, out)
		for o := range w {
			w[o] = make([]float64, in)
			for i := range w[o] {
				w[o][i] = rng.NormFloat64() * std
			}
		}
		n.weights = append(n.weights, w)
		n.biases = append(n.biases, make([]float64, out))
	}

	return n
}

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func reluPrime(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// Forward runs inference for one input row and returns the pass probability.
func (n *Network) Forward(x []float64) float64 {
	_, acts := n.forward(x)
	return acts[len(acts)-1][0]
}

// forward returns pre-activations and activations per layer for backprop.
// acts[0] is the input; len(acts) == len(zs)+1.
func (n *Network) forward(x []float64) (zs [][]float64, acts [][]float64) {
	a := append([]float64(nil), x...)
	acts = append(acts, a)

	last := len(n.weights) - 1
	for l, w := range n.weights {
		z := make([]float64, len(w))
		for o := range w {
			sum := n.biases[l][o]
			for i, wi := range w[o] {
				sum += wi * a[i]
			}
			z[o] = sum
		}
		zs = append(zs, z)

		next := make([]float64, len(z))
		for o, zv := range z {
			if l == last {
				next[o] = sigmoid(zv)
			} else {
				next[o] = relu(zv)
			}
		}
		acts = append(acts, next)
		a = next
	}

	return zs, acts
}

// Loss is the mean binary cross-entropy over a dataset.
func (n *Network) Loss(X [][]float64, y []float64) float64 {
	if len(X) == 0 {
		return 0
	}

	total := 0.0
	for i, row := range X {
		p := clampProb(n.Forward(row))
		total += -(y[i]*math.Log(p) + (1-y[i])*math.Log(1-p))
	}
	return total / float64(len(X))
}

func clampProb(p float64) float64 {
	if p < probEpsilon {
		return probEpsilon
	}
	if p > 1-probEpsilon {
		return 1 - probEpsilon
	}
	return p
}

// trainConfig bounds a training run. Early stopping and LR decay are the
// regularization levers against overfitting on small datasets.
type trainConfig struct {
	Epochs     int
	BatchSize  int
	LearnRate  float64
	MinLR      float64
	LRFactor   float64
	LRPatience int
	Patience   int
}

func defaultTrainConfig() trainConfig {
	return trainConfig{
		Epochs:     100,
		BatchSize:  32,
		LearnRate:  1e-3,
		MinLR:      1e-5,
		LRFactor:   0.5,
		LRPatience: 5,
		Patience:   15,
	}
}

// adamState holds first/second moment estimates mirroring the weight layout.
type adamState struct {
	mW, vW [][][]float64
	mB, vB [][]float64
	step   int
}

func newAdamState(n *Network) *adamState {
	s := &adamState{}
	for l := range n.weights {
		out, in := len(n.weights[l]), len(n.weights[l][0])
		s.mW = append(s.mW, zeroMatrix(out, in))
		s.vW = append(s.vW, zeroMatrix(out, in))
		s.mB = append(s.mB, make([]float64, out))
		s.vB = append(s.vB, make([]float64, out))
	}
	return s
}

func zeroMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

// Train fits the network with minibatch Adam, early-stopping on validation
// loss (best weights restored) and halving the learning rate on plateau.
// Returns the number of epochs actually run and the best validation loss.
func (n *Network) Train(trainX [][]float64, trainY []float64, valX [][]float64, valY []float64, cfg trainConfig, rng *rand.Rand) (int, float64) {
	batch := cfg.BatchSize
	if half := len(trainX) / 2; half > 0 && half < batch {
		batch = half
	}
	if batch < 1 {
		batch = 1
	}

	adam := newAdamState(n)
	lr := cfg.LearnRate

	bestLoss := math.Inf(1)
	bestWeights, bestBiases := n.cloneParams()
	stallEpochs := 0
	plateauEpochs := 0
	epochsRun := 0

	indices := make([]int, len(trainX))
	for i := range indices {
		indices[i] = i
	}

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		epochsRun = epoch + 1

		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		for start := 0; start < len(indices); start += batch {
			end := start + batch
			if end > len(indices) {
				end = len(indices)
			}
			n.stepBatch(trainX, trainY, indices[start:end], adam, lr)
		}

		valLoss := n.Loss(valX, valY)
		if valLoss < bestLoss {
			bestLoss = valLoss
			bestWeights, bestBiases = n.cloneParams()
			stallEpochs = 0
			plateauEpochs = 0
			continue
		}

		stallEpochs++
		plateauEpochs++

		if plateauEpochs >= cfg.LRPatience && lr > cfg.MinLR {
			lr = math.Max(lr*cfg.LRFactor, cfg.MinLR)
			plateauEpochs = 0
		}
		if stallEpochs >= cfg.Patience {
			break
		}
	}

	n.weights = bestWeights
	n.biases = bestBiases

	return epochsRun, bestLoss
}

// stepBatch accumulates gradients over one minibatch and applies Adam.
func (n *Network) stepBatch(X [][]float64, y []float64, batch []int, adam *adamState, lr float64) {
	gradW := make([][][]float64, len(n.weights))
	gradB := make([][]float64, len(n.biases))
	for l := range n.weights {
		gradW[l] = zeroMatrix(len(n.weights[l]), len(n.weights[l][0]))
		gradB[l] = make([]float64, len(n.biases[l]))
	}

	for _, idx := range batch {
		n.backprop(X[idx], y[idx], gradW, gradB)
	}

	scale := 1.0 / float64(len(batch))
	adam.step++
	const beta1, beta2, eps = 0.9, 0.999, 1e-8
	correct1 := 1 - math.Pow(beta1, float64(adam.step))
	correct2 := 1 - math.Pow(beta2, float64(adam.step))

	for l := range n.weights {
		for o := range n.weights[l] {
			for i := range n.weights[l][o] {
				g := gradW[l][o][i] * scale
				adam.mW[l][o][i] = beta1*adam.mW[l][o][i] + (1-beta1)*g
				adam.vW[l][o][i] = beta2*adam.vW[l][o][i] + (1-beta2)*g*g
				mHat := adam.mW[l][o][i] / correct1
				vHat := adam.vW[l][o][i] / correct2
				n.weights[l][o][i] -= lr * mHat / (math.Sqrt(vHat) + eps)
			}

			g := gradB[l][o] * scale
			adam.mB[l][o] = beta1*adam.mB[l][o] + (1-beta1)*g
			adam.vB[l][o] = beta2*adam.vB[l][o] + (1-beta2)*g*g
			mHat := adam.mB[l][o] / correct1
			vHat := adam.vB[l][o] / correct2
			n.biases[l][o] -= lr * mHat / (math.Sqrt(vHat) + eps)
		}
	}
}

// backprop adds one sample's gradients into the accumulators.
func (n *Network) backprop(x []float64, y float64, gradW [][][]float64, gradB [][]float64) {
	zs, acts := n.forward(x)
	last := len(n.weights) - 1

	// Sigmoid + cross-entropy collapse to (p - y) at the output.
	delta := []float64{acts[len(acts)-1][0] - y}

	for l := last; l >= 0; l-- {
		for o := range delta {
			gradB[l][o] += delta[o]
			for i, a := range acts[l] {
				gradW[l][o][i] += delta[o] * a
			}
		}

		if l == 0 {
			break
		}

		prev := make([]float64, n.sizes[l])
		for i := range prev {
			sum := 0.0
			for o := range delta {
				sum += n.weights[l][o][i] * delta[o]
			}
			prev[i] = sum * reluPrime(zs[l-1][i])
		}
		delta = prev
	}
}

func (n *Network) cloneParams() ([][][]float64, [][]float64) {
	weights := make([][][]float64, len(n.weights))
	biases := make([][]float64, len(n.biases))
	for l := range n.weights {
		weights[l] = zeroMatrix(len(n.weights[l]), len(n.weights[l][0]))
		for o := range n.weights[l] {
			copy(weights[l][o], n.weights[l][o])
		}
		biases[l] = append([]float64(nil), n.biases[l]...)
	}
	return weights, biases
}

// networkState is the JSON document format for persisted models.
type networkState struct {
	Sizes   []int         `json:"sizes"`
	Weights [][][]float64 `json:"weights"`
	Biases  [][]float64   `json:"biases"`
}

// Save writes the topology and parameters as JSON.
func (n *Network) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	defer file.Close()

	state := networkState{Sizes: n.sizes, Weights: n.weights, Biases: n.biases}
	if err := json.NewEncoder(file).Encode(state); err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}

	return nil
}

// LoadNetwork reads a persisted model from JSON.
func LoadNetwork(path string) (*Network, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer file.Close()

	var state networkState
	if err := json.NewDecoder(file).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}

	if len(state.Sizes) < 2 || len(state.Weights) != len(state.Sizes)-1 || len(state.Biases) != len(state.Sizes)-1 {
		return nil, fmt.Errorf("model file is corrupt: inconsistent topology")
	}

	return &Network{sizes: state.Sizes, weights: state.Weights, biases: state.Biases}, nil
}
