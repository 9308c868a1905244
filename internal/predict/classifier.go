package predict

import (
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/gonum/mat"

	apperrors "github.com/siga-analytics/siga-predict/internal/errors"
	"github.com/siga-analytics/siga-predict/internal/types"
)

// MinTrainingExamples is the smallest dataset Fit accepts.
const MinTrainingExamples = 10

// splitSeed fixes the train/validation split for reproducible metrics.
const splitSeed = 42

// Artifact file names. The two are always written and read together; a model
// without its matching scaler produces silently wrong probabilities.
const (
	modelFileName  = "model.json"
	scalerFileName = "scaler.json"
)

// Classifier is a binary pass/fail probability model. It owns its input
// normalization: the scaler fit during Fit is applied on every PredictProba
// call and persisted next to the network as a unit.
//
// Lifecycle: untrained at construction, trained after a successful Fit or
// Load, usable for inference only while trained. A second Fit replaces
// network and scaler together under the lock, so readers never observe a
// half-updated model.
type Classifier struct {
	mu      sync.RWMutex
	net     *Network
	scaler  *StandardScaler
	trained bool

	epochs int
}

// NewClassifier creates an untrained classifier
func NewClassifier() *Classifier {
	return &Classifier{epochs: defaultTrainConfig().Epochs}
}

// NewClassifierWithEpochs caps the training epochs, the only practical bound
// on training run time.
func NewClassifierWithEpochs(epochs int) *Classifier {
	c := NewClassifier()
	if epochs > 0 {
		c.epochs = epochs
	}
	return c
}

// Trained reports whether the classifier can serve predictions.
func (c *Classifier) Trained() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trained
}

// Fit trains a fresh network on X (N x 5) with binary labels y.
//
// Holds out 20% for validation, stratified by label so both classes appear in
// the validation set whenever both exist; with a single-class dataset the
// split degrades to a plain shuffled 80/20.
func (c *Classifier) Fit(X *mat.Dense, y []float64) (types.TrainingMetrics, error) {
	var metrics types.TrainingMetrics

	n, d := X.Dims()
	if d != NumFeatures {
		return metrics, apperrors.NewValidationError("training matrix has wrong feature width", d)
	}
	if n != len(y) {
		return metrics, apperrors.NewValidationError("feature matrix and label vector disagree on length")
	}
	if n < MinTrainingExamples {
		return metrics, apperrors.NewInsufficientDataError(n, MinTrainingExamples)
	}

	scaler := NewStandardScaler()
	scaler.Fit(X)
	scaled := scaler.Transform(X)

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, scaled)
	}

	rng := rand.New(rand.NewSource(splitSeed))
	trainIdx, valIdx := stratifiedSplit(y, 0.2, rng)

	trainX, trainY := gather(rows, y, trainIdx)
	valX, valY := gather(rows, y, valIdx)

	cfg := defaultTrainConfig()
	cfg.Epochs = c.epochs

	net := NewNetwork(defaultLayerSizes, rng)
	epochsRun, _ := net.Train(trainX, trainY, valX, valY, cfg, rng)

	metrics = evaluate(net, valX, valY)
	metrics.Epochs = epochsRun
	metrics.Examples = n

	c.mu.Lock()
	c.net = net
	c.scaler = scaler
	c.trained = true
	c.mu.Unlock()

	return metrics, nil
}

// PredictProba returns the probability of passing for one feature vector.
func (c *Classifier) PredictProba(fv FeatureVector) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.trained {
		return 0, apperrors.NewNotTrainedError()
	}

	row := c.scaler.TransformRow(fv[:])
	p := c.net.Forward(row)
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p, nil
}

// Save persists the network and the normalization transform together.
func (c *Classifier) Save(dir string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.trained {
		return apperrors.NewNotTrainedError()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperrors.NewInternalError("failed to create model directory", err)
	}

	if err := c.net.Save(filepath.Join(dir, modelFileName)); err != nil {
		return apperrors.NewInternalError("failed to save model", err)
	}
	if err := c.scaler.Save(filepath.Join(dir, scalerFileName)); err != nil {
		return apperrors.NewInternalError("failed to save scaler", err)
	}

	return nil
}

// Load restores a persisted model+scaler pair and flips to trained. Fails
// with a not-found error if either artifact is missing.
func (c *Classifier) Load(dir string) error {
	modelPath := filepath.Join(dir, modelFileName)
	scalerPath := filepath.Join(dir, scalerFileName)

	for _, path := range []string{modelPath, scalerPath} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return apperrors.NewNotFoundError("model artifacts not found", err)
		}
	}

	net, err := LoadNetwork(modelPath)
	if err != nil {
		return apperrors.NewInternalError("failed to load model", err)
	}
	scaler, err := LoadScaler(scalerPath)
	if err != nil {
		return apperrors.NewInternalError("failed to load scaler", err)
	}

	c.mu.Lock()
	c.net = net
	c.scaler = scaler
	c.trained = true
	c.mu.Unlock()

	return nil
}

// stratifiedSplit partitions indices into train/validation keeping the label
// ratio. Each present class contributes at least one validation example.
func stratifiedSplit(y []float64, valFrac float64, rng *rand.Rand) (train, val []int) {
	var pos, neg []int
	for i, label := range y {
		if label >= 0.5 {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}

	split := func(class []int) {
		rng.Shuffle(len(class), func(i, j int) { class[i], class[j] = class[j], class[i] })
		nVal := int(float64(len(class)) * valFrac)
		if nVal < 1 && len(class) > 1 {
			nVal = 1
		}
		val = append(val, class[:nVal]...)
		train = append(train, class[nVal:]...)
	}

	split(pos)
	split(neg)

	// Single-class data cannot be stratified; keep the 80/20 shape anyway.
	if len(val) == 0 && len(train) > 1 {
		nVal := len(train) / 5
		if nVal < 1 {
			nVal = 1
		}
		val = train[:nVal]
		train = train[nVal:]
	}

	return train, val
}

func gather(rows [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	X := make([][]float64, len(idx))
	labels := make([]float64, len(idx))
	for i, j := range idx {
		X[i] = rows[j]
		labels[i] = y[j]
	}
	return X, labels
}

// evaluate computes threshold-0.5 validation metrics.
func evaluate(net *Network, valX [][]float64, valY []float64) types.TrainingMetrics {
	var tp, fp, tn, fn float64

	for i, row := range valX {
		predicted := net.Forward(row) >= 0.5
		actual := valY[i] >= 0.5
		switch {
		case predicted && actual:
			tp++
		case predicted && !actual:
			fp++
		case !predicted && !actual:
			tn++
		default:
			fn++
		}
	}

	metrics := types.TrainingMetrics{ValLoss: net.Loss(valX, valY)}
	if total := tp + fp + tn + fn; total > 0 {
		metrics.Accuracy = (tp + tn) / total
	}
	if tp+fp > 0 {
		metrics.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		metrics.Recall = tp / (tp + fn)
	}

	return metrics
}
