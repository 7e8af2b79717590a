package optimize

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	gold   = 1.618034
	glimit = 100.0
	tiny   = 1.0e-20

	brentTol     = 3.0e-8
	brentMaxIter = 100
	// zeps guards against a minimum at exactly zero.
	zeps = 2.220446049250313e-16 * 1.0e-3
)

// lineFunc restricts an Objective to the ray p + a·xi.
type lineFunc struct {
	obj Objective
	p   []float64
	xi  []float64
	xt  []float64
	dft []float64
}

func newLineFunc(obj Objective, p, xi []float64) *lineFunc {
	return &lineFunc{
		obj: obj,
		p:   p,
		xi:  xi,
		xt:  make([]float64, len(p)),
		dft: make([]float64, len(p)),
	}
}

func (l *lineFunc) value(a float64) float64 {
	floats.AddScaledTo(l.xt, l.p, a, l.xi)
	return l.obj.Value(l.xt)
}

// deriv is the directional derivative at p + a·xi.
func (l *lineFunc) deriv(a float64) float64 {
	floats.AddScaledTo(l.xt, l.p, a, l.xi)
	l.obj.Gradient(l.xt, l.dft)
	return floats.Dot(l.dft, l.xi)
}

// bracket holds three abscissas with fb <= fa and fb <= fc once
// expand returns, so that a minimum lies between ax and cx.
type bracket struct {
	ax, bx, cx float64
	fa, fb, fc float64
}

// expand searches downhill from a and b with golden-section steps and
// parabolic extrapolation until the minimum is bracketed.
func (br *bracket) expand(a, b float64, f func(float64) float64) {
	br.ax, br.bx = a, b
	br.fa, br.fb = f(a), f(b)
	if br.fb > br.fa {
		br.ax, br.bx = br.bx, br.ax
		br.fa, br.fb = br.fb, br.fa
	}
	br.cx = br.bx + gold*(br.bx-br.ax)
	br.fc = f(br.cx)

	for br.fb > br.fc {
		r := (br.bx - br.ax) * (br.fb - br.fc)
		q := (br.bx - br.cx) * (br.fb - br.fa)
		u := br.bx - ((br.bx-br.cx)*q-(br.bx-br.ax)*r)/(2*math.Copysign(math.Max(math.Abs(q-r), tiny), q-r))
		ulim := br.bx + glimit*(br.cx-br.bx)
		var fu float64

		switch {
		case (br.bx-u)*(u-br.cx) > 0:
			fu = f(u)
			if fu < br.fc {
				br.ax, br.bx = br.bx, u
				br.fa, br.fb = br.fb, fu
				return
			}
			if fu > br.fb {
				br.cx, br.fc = u, fu
				return
			}
			u = br.cx + gold*(br.cx-br.bx)
			fu = f(u)
		case (br.cx-u)*(u-ulim) > 0:
			fu = f(u)
			if fu < br.fc {
				next := u + gold*(u-br.cx)
				br.bx, br.cx, u = br.cx, u, next
				br.fb, br.fc, fu = br.fc, fu, f(next)
			}
		case (u-ulim)*(ulim-br.cx) >= 0:
			u = ulim
			fu = f(u)
		default:
			u = br.cx + gold*(br.cx-br.bx)
			fu = f(u)
		}
		br.ax, br.bx, br.cx = br.bx, br.cx, u
		br.fa, br.fb, br.fc = br.fb, br.fc, fu
	}
}

// dbrent refines a bracketed minimum using Brent's method with first
// derivatives. It returns the abscissa and value of the minimum found.
func dbrent(br *bracket, l *lineFunc) (xmin, fmin float64) {
	a, b := math.Min(br.ax, br.cx), math.Max(br.ax, br.cx)
	x, w, v := br.bx, br.bx, br.bx
	fx := l.value(x)
	fw, fv := fx, fx
	dx := l.deriv(x)
	dw, dv := dx, dx
	var d, e float64

	for iter := 0; iter < brentMaxIter; iter++ {
		xm := 0.5 * (a + b)
		tol1 := brentTol*math.Abs(x) + zeps
		tol2 := 2 * tol1
		if math.Abs(x-xm) <= tol2-0.5*(b-a) {
			return x, fx
		}

		bisect := true
		if math.Abs(e) > tol1 {
			d1 := 2 * (b - a)
			d2 := d1
			if dw != dx {
				d1 = (w - x) * dx / (dx - dw)
			}
			if dv != dx {
				d2 = (v - x) * dx / (dx - dv)
			}
			u1, u2 := x+d1, x+d2
			ok1 := (a-u1)*(u1-b) > 0 && dx*d1 <= 0
			ok2 := (a-u2)*(u2-b) > 0 && dx*d2 <= 0
			olde := e
			e = d
			if ok1 || ok2 {
				switch {
				case ok1 && ok2:
					if math.Abs(d1) < math.Abs(d2) {
						d = d1
					} else {
						d = d2
					}
				case ok1:
					d = d1
				default:
					d = d2
				}
				if math.Abs(d) <= math.Abs(0.5*olde) {
					bisect = false
					u := x + d
					if u-a < tol2 || b-u < tol2 {
						d = math.Copysign(tol1, xm-x)
					}
				}
			}
		}
		if bisect {
			if dx >= 0 {
				e = a - x
			} else {
				e = b - x
			}
			d = 0.5 * e
		}

		var u, fu float64
		if math.Abs(d) >= tol1 {
			u = x + d
			fu = l.value(u)
		} else {
			u = x + math.Copysign(tol1, d)
			fu = l.value(u)
			if fu > fx {
				return x, fx
			}
		}
		du := l.deriv(u)
		if fu <= fx {
			if u >= x {
				a = x
			} else {
				b = x
			}
			v, fv, dv = w, fw, dw
			w, fw, dw = x, fx, dx
			x, fx, dx = u, fu, du
		} else {
			if u < x {
				a = u
			} else {
				b = u
			}
			if fu <= fw || w == x {
				v, fv, dv = w, fw, dw
				w, fw, dw = u, fu, du
			} else if fu < fv || v == x || v == w {
				v, fv, dv = u, fu, du
			}
		}
	}
	return x, fx
}

// lineMinimize moves p to the minimum along xi and replaces xi with the
// displacement actually taken. It returns the objective at the new p.
func lineMinimize(obj Objective, p, xi []float64) float64 {
	l := newLineFunc(obj, p, xi)
	var br bracket
	br.expand(0, 1, l.value)
	xmin, fmin := dbrent(&br, l)
	floats.Scale(xmin, xi)
	floats.Add(p, xi)
	return fmin
}
