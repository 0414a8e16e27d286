package shader

import "testing"

// simpleShader is a minimal unit used for benchmarking the fast path.
const simpleShader = `
float add(float a, float b) {
	return a + b;
}

float probe() {
	float x = add(3.0, 4.0);
	return x;
}
`

// complexShader exercises structs, arrays, loops, matrices, swizzles and
// parameter passing.
const complexShader = `
struct Ray {
	vec3 origin;
	vec3 dir;
};

uniform float u_time;
uniform mat3 u_rot;

float sphere_hit(Ray r, vec3 center, float radius) {
	vec3 oc = r.origin - center;
	float b = dot(oc, r.dir);
	float c = dot(oc, oc) - radius * radius;
	float d = b * b - c;
	if (d < 0.0) {
		return -1.0;
	}
	return -b - sqrt(d);
}

vec3 shade(float t, vec3 dir) {
	if (t < 0.0) {
		return vec3(0.0);
	}
	vec3 n = u_rot * dir;
	float l = clamp(n.y, 0.0, 1.0);
	return mix(vec3(0.1), vec3(1.0, 0.9, 0.8), l);
}

float accumulate(int n) {
	float samples[8];
	float total = 0.0;
	for (int i = 0; i < samples.length(); i++) {
		samples[i] = fract(float(i) * 0.37 + u_time);
	}
	for (int i = 0; i < n; i++) {
		total += samples[i];
	}
	return total;
}

float probe() {
	Ray r = Ray(vec3(0.0, 0.0, -3.0), vec3(0.0, 0.0, 1.0));
	float t = sphere_hit(r, vec3(0.0), 1.0);
	vec3 c = shade(t, r.dir);
	return c.x + c.y + c.z + accumulate(8);
}
`

func BenchmarkLex_Simple(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, err := Lex(simpleShader)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLex_Complex(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, err := Lex(complexShader)
		if err != nil {
			b.Fatal(err)
		}
	}
}

// Tokens are pre-computed outside the timed region.

func BenchmarkParse_Simple(b *testing.B) {
	tokens, err := Lex(simpleShader)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := Parse(tokens, simpleShader)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParse_Complex(b *testing.B) {
	tokens, err := Lex(complexShader)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := Parse(tokens, complexShader)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCompile_Simple(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, err := Compile(simpleShader, Target{})
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCompile_Complex(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, err := Compile(complexShader, Target{})
		if err != nil {
			b.Fatal(err)
		}
	}
}
