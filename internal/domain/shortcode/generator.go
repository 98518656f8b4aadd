package shortcode

import "math/rand/v2"

// Alphabet es el alfabeto fijo de los short codes: 36 símbolos, minúsculas.
// Coincide con lo que se imprime en los tags físicos (sin mayúsculas para
// evitar ambigüedad al leerlos en voz alta).
const Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Generate produce un string aleatorio de exactamente length caracteres del
// alfabeto. No garantiza unicidad; eso es trabajo del Allocator + la base.
func Generate(length int) string {
	if length <= 0 {
		return ""
	}
	b := make([]byte, length)
	for i := range b {
		b[i] = Alphabet[rand.IntN(len(Alphabet))]
	}
	return string(b)
}
