package metrics

const markerCount = 5

type marker struct {
	height   float64
	position int
}

// P2Quantile estimates a single quantile in constant memory using the P²
// algorithm (Jain & Chlamtac). Estimates are rough until a few hundred
// representative samples have been absorbed.
type P2Quantile struct {
	q       float64
	n       int
	probs   [markerCount]float64
	markers [markerCount]marker
}

// NewP2Quantile creates an estimator for probability q in [0, 1].
func NewP2Quantile(q float64) *P2Quantile {
	return &P2Quantile{
		q:     q,
		probs: [markerCount]float64{0, q / 2, q, (1 + q) / 2, 1},
	}
}

// Add absorbs one sample.
func (p *P2Quantile) Add(x float64) {
	if p.n < markerCount {
		p.insertInitial(x)
		return
	}

	k := p.locateCell(x)
	for i := k + 1; i < markerCount; i++ {
		p.markers[i].position++
	}

	// Desired positions use the count before this sample.
	for i := 1; i < markerCount-1; i++ {
		p.adjust(i)
	}
	p.n++
}

// BulkAdd absorbs values in order.
func (p *P2Quantile) BulkAdd(values []float64) {
	for _, v := range values {
		p.Add(v)
	}
}

// Get returns the current estimate, the height of the middle marker.
func (p *P2Quantile) Get() float64 {
	return p.markers[2].height
}

// Count returns the number of samples absorbed.
func (p *P2Quantile) Count() int {
	return p.n
}

// insertInitial keeps the first samples sorted in the marker array.
func (p *P2Quantile) insertInitial(x float64) {
	i := p.n
	for i > 0 && p.markers[i-1].height > x {
		p.markers[i].height = p.markers[i-1].height
		i--
	}
	p.markers[i].height = x
	p.n++
	for j := 0; j < p.n; j++ {
		p.markers[j].position = j + 1
	}
}

func (p *P2Quantile) locateCell(x float64) int {
	if x < p.markers[0].height {
		p.markers[0].height = x
		return 0
	}
	if x >= p.markers[markerCount-1].height {
		p.markers[markerCount-1].height = x
		return markerCount - 2
	}
	k := 0
	for k < markerCount-2 && x >= p.markers[k+1].height {
		k++
	}
	return k
}

func (p *P2Quantile) adjust(i int) {
	desired := 1 + float64(p.n-1)*p.probs[i]
	d := desired - float64(p.markers[i].position)

	upGap := p.markers[i+1].position - p.markers[i].position
	downGap := p.markers[i-1].position - p.markers[i].position
	if !(d >= 1 && upGap > 1) && !(d <= -1 && downGap < -1) {
		return
	}

	s := 1
	if d < 0 {
		s = -1
	}

	h := p.parabolic(i, s)
	if !(p.markers[i-1].height < h && h < p.markers[i+1].height) {
		h = p.linear(i, s)
	}
	p.markers[i].height = h
	p.markers[i].position += s
}

func (p *P2Quantile) parabolic(i, s int) float64 {
	sf := float64(s)
	q, q1, q2 := p.markers[i].height, p.markers[i-1].height, p.markers[i+1].height
	m := float64(p.markers[i].position)
	m1 := float64(p.markers[i-1].position)
	m2 := float64(p.markers[i+1].position)

	return q + sf/(m2-m1)*((m-m1+sf)*(q2-q)/(m2-m)+(m2-m-sf)*(q-q1)/(m-m1))
}

func (p *P2Quantile) linear(i, s int) float64 {
	j := i + s
	return p.markers[i].height + float64(s)*(p.markers[j].height-p.markers[i].height)/
		float64(p.markers[j].position-p.markers[i].position)
}
