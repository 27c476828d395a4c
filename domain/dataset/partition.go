package dataset

// Split is an initial train/test partition expressed as row indices
type Split struct {
	Train []int
	Test  []int
	Seed  int64
}

// Fold is one cross-validation resample: the model is fit on Analysis rows
// and scored on Assessment rows. Indices refer to the original matrix.
type Fold struct {
	ID         string
	Analysis   []int
	Assessment []int
}

// Resamples groups the folds produced from one training partition
type Resamples struct {
	Folds []Fold
	Seed  int64
}

// Len returns the number of folds
func (r Resamples) Len() int {
	return len(r.Folds)
}
