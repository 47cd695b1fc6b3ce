package raminfo

import (
	"fmt"
	"strings"
)

// Approximate resident-set cost in MB per quantization at a 4096-token
// context, taken from llama.cpp profiling of 7B-class models.
var quantRAMMB = map[string]int{
	"Q2_K":   2500,
	"Q3_K_S": 3100,
	"Q4_0":   3500,
	"Q4_K_M": 3900,
	"Q5_0":   4500,
	"Q5_K_M": 4900,
	"Q6_K":   5500,
	"Q8_0":   8000,
}

// EstimateMB returns the heuristic RAM requirement in MB for the given
// quantization label and context length, or 0 when the label is unknown.
func EstimateMB(quant string, context int) int {
	if quant == "" {
		return 0
	}
	base, ok := quantRAMMB[strings.ToUpper(quant)]
	if !ok {
		return 0
	}
	if context <= 0 {
		context = 4096
	}
	return base * context / 4096
}

// Format renders an estimate for display, e.g. "~3.9 GB RAM".
func Format(quant string, context int) string {
	mb := EstimateMB(quant, context)
	if mb == 0 {
		return "unknown"
	}
	return fmt.Sprintf("~%d.%d GB RAM", mb/1024, mb%1024/100)
}
