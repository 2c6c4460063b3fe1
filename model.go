package huffman

// Model is a reusable trained symbol model: the frequency table, its tree and
// the derived code table.
type Model struct {
	config Config
	freqs  *FrequencyTable
	root   Node
	codes  *CodeTable
}

// NewModel creates an empty model with the provided options.
func NewModel(opts ...Option) *Model {
	return &Model{config: newConfig(opts)}
}

// TrainModel trains a reusable model from sample text.
func TrainModel(text string, opts ...Option) (*Model, error) {
	m := NewModel(opts...)
	if err := m.Train(text); err != nil {
		return nil, err
	}
	return m, nil
}

// Train builds the frequency table, tree and code table for subsequent
// Encode calls.
func (m *Model) Train(text string) error {
	_, err := m.train(text)
	return err
}

func (m *Model) train(text string) ([]Symbol, error) {
	symbols, err := m.Mode().Symbols(text)
	if err != nil {
		return nil, err
	}
	freqs := Count(symbols)
	root := BuildTree(freqs)
	codes, err := GenerateCodes(root)
	if err != nil {
		return nil, err
	}
	m.freqs, m.root, m.codes = freqs, root, codes
	return symbols, nil
}

// Encode compresses text using a previously trained model. Every symbol of
// text must occur in the training text.
//
// The header always describes the model, not text: a word-mode container
// carries the training frequency table, so its counts are those of the
// training text. Decoding rebuilds the model's tree from it.
func (m *Model) Encode(text string) (*Container, error) {
	if !m.Trained() {
		return nil, ErrUntrainedModel
	}
	symbols, err := m.Mode().Symbols(text)
	if err != nil {
		return nil, err
	}
	return m.encodeSymbols(symbols)
}

func (m *Model) encodeSymbols(symbols []Symbol) (*Container, error) {
	payload, err := Pack(symbols, m.codes)
	if err != nil {
		return nil, err
	}
	c := &Container{
		Mode:           m.Mode(),
		Payload:        payload,
		headerEncoding: m.config.HeaderEncoding,
		noChecksum:     m.config.DisableChecksum,
	}
	if c.Mode == ModeWord {
		c.Frequencies = m.freqs
	} else {
		c.Codes = m.codes
	}
	return c, nil
}

// Trained reports whether the model is ready for Encode.
func (m *Model) Trained() bool {
	return m.freqs != nil
}

// Mode returns the symbol model.
func (m *Model) Mode() Mode {
	return m.config.encodeMode()
}

// Frequencies returns the trained frequency table.
func (m *Model) Frequencies() *FrequencyTable {
	return m.freqs
}

// Root returns the trained tree; nil when trained on empty text.
func (m *Model) Root() Node {
	return m.root
}

// Codes returns the trained code table.
func (m *Model) Codes() *CodeTable {
	return m.codes
}
