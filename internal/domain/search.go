package domain

import "math"

const (
	DefaultSearchTolerance     = 1e-4
	DefaultSearchMaxIterations = 100
)

// SearchResult es el resultado de BinarySearch.
type SearchResult struct {
	X          float64 // punto medio del último intervalo evaluado
	Residual   float64 // f(X)
	Iterations int
}

// BinarySearch busca una raíz de f en [lo, hi] por bisección.
//
// Convención de signo: f(x) > 0 cuando x es demasiado alto y f(x) < 0 cuando
// es demasiado bajo. Se detiene cuando |f| ≤ tol, cuando el intervalo colapsa
// o al llegar a maxIter; en todos los casos devuelve el punto medio.
// tol ≤ 0 y maxIter ≤ 0 usan los valores por defecto.
func BinarySearch(lo, hi float64, f func(x float64) float64, tol float64, maxIter int) SearchResult {
	if tol <= 0 {
		tol = DefaultSearchTolerance
	}
	if maxIter <= 0 {
		maxIter = DefaultSearchMaxIterations
	}
	if lo > hi {
		lo, hi = hi, lo
	}

	var res SearchResult
	for res.Iterations < maxIter {
		mid := lo + (hi-lo)/2
		res.X = mid
		res.Residual = f(mid)
		res.Iterations++

		if math.Abs(res.Residual) <= tol || mid == lo || mid == hi {
			break
		}
		if res.Residual > 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	return res
}
