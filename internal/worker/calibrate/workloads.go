package calibrate

import (
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Workload 一个 benchmark 程序
// Reference 是在单核参考机上预先跑出来的平均耗时 (秒)
type Workload struct {
	Name      string
	Reference float64
	Run       func()
}

// DefaultSuite 返回五个异构 benchmark，顺序和参考耗时固定
func DefaultSuite() []Workload {
	return []Workload{
		{Name: "primes", Reference: 0.004, Run: func() { _ = primesBelow(10000) }},
		{Name: "matmul", Reference: 0.008, Run: func() { _ = RandomMatMul(500) }},
		{Name: "sort", Reference: 0.35, Run: func() { sortRandom(1_000_000) }},
		{Name: "montecarlo", Reference: 0.02, Run: func() { _ = monteCarloPi(10000) }},
		{Name: "fibonacci", Reference: 0.0006, Run: func() { _ = fib(20) }},
	}
}

// primesBelow 试除法求素数
func primesBelow(n int) []int {
	primes := make([]int, 0, n/8)
	for num := 2; num < n; num++ {
		isPrime := true
		limit := int(math.Sqrt(float64(num)))
		for i := 2; i <= limit; i++ {
			if num%i == 0 {
				isPrime = false
				break
			}
		}
		if isPrime {
			primes = append(primes, num)
		}
	}
	return primes
}

// RandomMatMul 两个 n*n 随机稠密矩阵相乘，也是节点执行任务时的单位负载
func RandomMatMul(n int) *mat.Dense {
	a := mat.NewDense(n, n, randomSlice(n*n))
	b := mat.NewDense(n, n, randomSlice(n*n))
	var c mat.Dense
	c.Mul(a, b)
	return &c
}

func sortRandom(n int) {
	slices.Sort(randomSlice(n))
}

func monteCarloPi(samples int) float64 {
	inside := 0
	for range samples {
		x, y := rand.Float64(), rand.Float64()
		if x*x+y*y <= 1 {
			inside++
		}
	}
	return 4 * float64(inside) / float64(samples)
}

func fib(n int) int {
	if n <= 1 {
		return n
	}
	return fib(n-1) + fib(n-2)
}

func randomSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = rand.Float64()
	}
	return s
}
