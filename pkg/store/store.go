// Package store persists per-image graph and pixel data on disk.
//
// Layout under the root directory:
//
//	graph_data/graph_<n>/{edges,edge_feat,gt_edge_weights,node_labeling,affinities}.bin
//	graph_data/graph_<n>/meta.yaml
//	pix_data/pix_<n>/{raw,gt,raw_2chnl}.bin
//	pix_data/pix_<n>/meta.yaml
//
// Arrays are written with the gonum binary matrix format. meta.yaml is
// written last, so an image directory without it is incomplete and treated as
// missing. Data is written once per image and read many times.
package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"rlforseg/internal/models"
)

// ErrNotFound is returned when an image has no persisted data
var ErrNotFound = fmt.Errorf("persisted data not found: %w", fs.ErrNotExist)

const (
	graphDir = "graph_data"
	pixDir   = "pix_data"
	metaFile = "meta.yaml"
)

// Store reads and writes the graph and pixel data of a dataset root
type Store struct {
	root string
}

// New creates a store rooted at dir. The directory is created on first save.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the dataset root directory
func (s *Store) Root() string {
	return s.root
}

// graphMeta describes the arrays of one graph directory
type graphMeta struct {
	Image       int             `yaml:"image"`
	Width       int             `yaml:"width"`
	Height      int             `yaml:"height"`
	NumNodes    int             `yaml:"numNodes"`
	NumEdges    int             `yaml:"numEdges"`
	NumFeatures int             `yaml:"numFeatures"`
	Channels    int             `yaml:"channels"`
	Offsets     []models.Offset `yaml:"offsets"`
	DiffToGT    float64         `yaml:"diffToGt"`
}

// pixMeta describes the arrays of one pixel directory
type pixMeta struct {
	Image          int  `yaml:"image"`
	Width          int  `yaml:"width"`
	Height         int  `yaml:"height"`
	HasRaw2Channel bool `yaml:"hasRaw2Channel"`
}

func (s *Store) graphPath(n int) string {
	return filepath.Join(s.root, graphDir, fmt.Sprintf("graph_%d", n))
}

func (s *Store) pixPath(n int) string {
	return filepath.Join(s.root, pixDir, fmt.Sprintf("pix_%d", n))
}

// SaveGraph writes the graph data of image n
func (s *Store) SaveGraph(n int, g *models.GraphData) error {
	dir := s.graphPath(n)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create graph directory: %w", err)
	}

	meta := graphMeta{
		Image:    n,
		Width:    g.NodeLabeling.Width,
		Height:   g.NodeLabeling.Height,
		NumNodes: g.NodeLabeling.Max() + 1,
		NumEdges: len(g.Edges),
		Offsets:  g.Offsets,
		DiffToGT: g.DiffToGT,
	}
	if g.Affinities != nil {
		meta.Channels = g.Affinities.Channels
	}
	if g.EdgeFeatures != nil && !g.EdgeFeatures.IsEmpty() {
		_, meta.NumFeatures = g.EdgeFeatures.Dims()
	}

	if err := writeMatrix(dir, "node_labeling", labelsToDense(g.NodeLabeling)); err != nil {
		return err
	}
	if meta.Channels > 0 {
		if err := writeMatrix(dir, "affinities", stackToDense(g.Affinities)); err != nil {
			return err
		}
	}
	if meta.NumEdges > 0 {
		if err := writeMatrix(dir, "edges", edgesToDense(g.Edges)); err != nil {
			return err
		}
		if meta.NumFeatures > 0 {
			if err := writeMatrix(dir, "edge_feat", g.EdgeFeatures); err != nil {
				return err
			}
		}
		if err := writeMatrix(dir, "gt_edge_weights", mat.NewVecDense(len(g.GTEdgeCosts), g.GTEdgeCosts)); err != nil {
			return err
		}
	}

	return writeMeta(dir, meta)
}

// LoadGraph reads the graph data of image n. A missing image yields an error
// wrapping ErrNotFound.
func (s *Store) LoadGraph(n int) (*models.GraphData, error) {
	dir := s.graphPath(n)
	var meta graphMeta
	if err := readMeta(dir, &meta); err != nil {
		return nil, fmt.Errorf("graph %d: %w", n, err)
	}

	labels, err := readDense(dir, "node_labeling")
	if err != nil {
		return nil, err
	}
	g := &models.GraphData{
		NodeLabeling: denseToLabels(labels),
		Offsets:      meta.Offsets,
		DiffToGT:     meta.DiffToGT,
		EdgeFeatures: &mat.Dense{},
	}

	if meta.Channels > 0 {
		affs, err := readDense(dir, "affinities")
		if err != nil {
			return nil, err
		}
		g.Affinities = denseToStack(affs, meta.Width, meta.Height)
	}

	if meta.NumEdges > 0 {
		edges, err := readDense(dir, "edges")
		if err != nil {
			return nil, err
		}
		g.Edges = denseToEdges(edges)

		if meta.NumFeatures > 0 {
			if g.EdgeFeatures, err = readDense(dir, "edge_feat"); err != nil {
				return nil, err
			}
		}

		var costs mat.VecDense
		if err := readMatrix(dir, "gt_edge_weights", &costs); err != nil {
			return nil, err
		}
		g.GTEdgeCosts = mat.Col(nil, 0, &costs)
	}

	if len(g.Edges) != meta.NumEdges || len(g.GTEdgeCosts) != meta.NumEdges {
		return nil, fmt.Errorf("graph %d: expected %d edges, found %d edges and %d costs",
			n, meta.NumEdges, len(g.Edges), len(g.GTEdgeCosts))
	}
	return g, nil
}

// SavePix writes the pixel data of image n
func (s *Store) SavePix(n int, p *models.PixData) error {
	dir := s.pixPath(n)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create pixel directory: %w", err)
	}

	meta := pixMeta{
		Image:          n,
		Width:          p.Raw.Width,
		Height:         p.Raw.Height,
		HasRaw2Channel: p.Raw2Channel != nil,
	}

	if err := writeMatrix(dir, "raw", mat.NewDense(p.Raw.Height, p.Raw.Width, p.Raw.Data)); err != nil {
		return err
	}
	if err := writeMatrix(dir, "gt", labelsToDense(p.GT)); err != nil {
		return err
	}
	if p.Raw2Channel != nil {
		if err := writeMatrix(dir, "raw_2chnl", stackToDense(p.Raw2Channel)); err != nil {
			return err
		}
	}

	return writeMeta(dir, meta)
}

// LoadPix reads the pixel data of image n. A missing image yields an error
// wrapping ErrNotFound.
func (s *Store) LoadPix(n int) (*models.PixData, error) {
	dir := s.pixPath(n)
	var meta pixMeta
	if err := readMeta(dir, &meta); err != nil {
		return nil, fmt.Errorf("pix %d: %w", n, err)
	}

	raw, err := readDense(dir, "raw")
	if err != nil {
		return nil, err
	}
	gt, err := readDense(dir, "gt")
	if err != nil {
		return nil, err
	}

	p := &models.PixData{
		Raw: &models.FloatMap{Width: meta.Width, Height: meta.Height, Data: raw.RawMatrix().Data},
		GT:  denseToLabels(gt),
	}
	if meta.HasRaw2Channel {
		stack, err := readDense(dir, "raw_2chnl")
		if err != nil {
			return nil, err
		}
		p.Raw2Channel = denseToStack(stack, meta.Width, meta.Height)
	}
	return p, nil
}

// List returns the numbers of all complete graphs in ascending order
func (s *Store) List() ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, graphDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}

	var images []int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "graph_") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "graph_"))
		if err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.graphPath(n), metaFile)); err != nil {
			continue
		}
		images = append(images, n)
	}
	sort.Ints(images)
	return images, nil
}

func writeMeta(dir string, meta any) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func readMeta(dir string, meta any) error {
	data, err := os.ReadFile(filepath.Join(dir, metaFile))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := yaml.Unmarshal(data, meta); err != nil {
		return fmt.Errorf("failed to parse metadata: %w", err)
	}
	return nil
}

// binaryMarshaler is satisfied by *mat.Dense and *mat.VecDense
type binaryMarshaler interface {
	MarshalBinaryTo(w io.Writer) (int, error)
}

// binaryUnmarshaler is satisfied by *mat.Dense and *mat.VecDense
type binaryUnmarshaler interface {
	UnmarshalBinaryFrom(r io.Reader) (int, error)
}

func writeMatrix(dir, name string, m binaryMarshaler) error {
	path := filepath.Join(dir, name+".bin")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if _, err := m.MarshalBinaryTo(w); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return file.Close()
}

func readMatrix(dir, name string, m binaryUnmarshaler) error {
	file, err := os.Open(filepath.Join(dir, name+".bin"))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer file.Close()

	if _, err := m.UnmarshalBinaryFrom(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	return nil
}

func readDense(dir, name string) (*mat.Dense, error) {
	var m mat.Dense
	if err := readMatrix(dir, name, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
