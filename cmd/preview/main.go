// Command preview renders a compiled shader on the reference VM, one entry
// call per cell of a small grid, and shows the result in a window.
//
// The shader contract mirrors the playback device: the entry point reads
// the uniforms u_uv (vec2, cell center in [0,1)), u_time (float, seconds)
// when it declares them, and writes its result to a global named out_color
// (vec3, components in [0,1]). A discard leaves the cell black.
//
// Usage:
//
//	preview [-grid n] [-scale n] [-entry name] file.lum
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text"
	"golang.org/x/image/font/basicfont"

	"lumen/pkg/fixp"
	"lumen/pkg/shader"
	"lumen/pkg/vm"
)

// Game drives one shader program: every frame it reruns the entry point
// across the grid and blits the collected colors.
type Game struct {
	name  string
	entry string
	m     *vm.Machine

	grid  int
	scale int
	frame int

	img *ebiten.Image // reused grid-sized canvas
	pix []byte

	hasUV   bool
	hasTime bool
	steps   int // steps spent on the last full frame
}

func (g *Game) Update() error {
	g.frame++
	return nil
}

func (g *Game) renderGrid() {
	if g.pix == nil {
		g.pix = make([]byte, g.grid*g.grid*4)
	}

	t := fixp.FromFloat(float64(g.frame) / 60.0)
	if g.hasTime {
		_ = g.m.WriteGlobal("u_time", []int32{t})
	}

	g.steps = 0
	inv := fixp.Div(fixp.One, fixp.FromInt(int32(g.grid)))
	half := inv / 2
	for y := 0; y < g.grid; y++ {
		for x := 0; x < g.grid; x++ {
			if g.hasUV {
				u := fixp.Mul(fixp.FromInt(int32(x)), inv) + half
				v := fixp.Mul(fixp.FromInt(int32(y)), inv) + half
				_ = g.m.WriteGlobal("u_uv", []int32{u, v})
			}

			i := (y*g.grid + x) * 4
			if _, err := g.m.Run(g.entry, 0); err != nil || g.m.Trapped || g.m.Discarded {
				g.pix[i], g.pix[i+1], g.pix[i+2], g.pix[i+3] = 0, 0, 0, 0xff
				g.steps += g.m.Steps
				continue
			}
			g.steps += g.m.Steps

			rgb, err := g.m.ReadGlobal("out_color")
			if err != nil || len(rgb) < 3 {
				g.pix[i], g.pix[i+1], g.pix[i+2], g.pix[i+3] = 0xff, 0, 0xff, 0xff
				continue
			}
			g.pix[i] = channelByte(rgb[0])
			g.pix[i+1] = channelByte(rgb[1])
			g.pix[i+2] = channelByte(rgb[2])
			g.pix[i+3] = 0xff
		}
	}
}

// channelByte maps a Q16.16 value in [0,1] to an 8-bit channel, clamping
// out-of-range results instead of wrapping.
func channelByte(v int32) byte {
	if v <= 0 {
		return 0
	}
	if v >= fixp.One {
		return 0xff
	}
	return byte((int64(v) * 255) >> 16)
}

func (g *Game) Draw(screen *ebiten.Image) {
	if g.img == nil {
		g.img = ebiten.NewImage(g.grid, g.grid)
	}
	g.renderGrid()
	g.img.WritePixels(g.pix)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(g.scale), float64(g.scale))
	screen.DrawImage(g.img, op)

	status := fmt.Sprintf("%s  %s()  %.1f fps  %d steps/frame",
		g.name, g.entry, ebiten.ActualFPS(), g.steps)
	text.Draw(screen, status, basicfont.Face7x13, 4, g.grid*g.scale-6, color.White)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.grid * g.scale, g.grid * g.scale
}

func main() {
	gridSize := flag.Int("grid", 64, "cells per side")
	scale := flag.Int("scale", 8, "pixels per cell")
	entry := flag.String("entry", "main", "entry point to call per cell")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: preview [flags] file.lum")
		flag.PrintDefaults()
		os.Exit(2)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("read error: %v", err)
	}

	unit, err := shader.Compile(string(data), shader.Target{})
	if err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
	if _, ok := unit.Prog.Entries[*entry]; !ok {
		log.Fatalf("%s: no entry point %q", flag.Arg(0), *entry)
	}
	if _, ok := unit.Prog.Globals["out_color"]; !ok {
		log.Fatalf("%s: shader declares no out_color global", flag.Arg(0))
	}

	m := vm.New(unit.Prog)
	_, hasUV := unit.Prog.Globals["u_uv"]
	_, hasTime := unit.Prog.Globals["u_time"]

	game := &Game{
		name:    flag.Arg(0),
		entry:   *entry,
		m:       m,
		grid:    *gridSize,
		scale:   *scale,
		hasUV:   hasUV,
		hasTime: hasTime,
	}

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(game.Layout(0, 0))
	ebiten.SetWindowTitle("lumen preview")
	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}
