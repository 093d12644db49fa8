// Command desktop compiles a C source file and runs it in a window. Program
// output scrolls in the window and the read built-in prompts for a number
// typed into it.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/draw"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"ccvm/pkg/compiler"
	"ccvm/pkg/config"
	"ccvm/pkg/cpu"
	"ccvm/pkg/utils"
)

const (
	screenWidth  = 640
	screenHeight = 480
	lineHeight   = 16
	margin       = 8
)

// terminal is the state shared by the interpreter goroutine and the game
// loop. Program output is appended through Write; read blocks in Read
// until the window submits a line.
type terminal struct {
	mu      sync.Mutex
	buf     strings.Builder
	waiting bool
	done    bool
	status  string
	input   chan int64
}

func newTerminal() *terminal {
	return &terminal{input: make(chan int64, 1)}
}

// Write implements io.Writer for cpu.WithOutput.
func (t *terminal) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Write(p)
}

// Read is the cpu.InputFunc used by the read built-in.
func (t *terminal) Read() (int64, error) {
	t.mu.Lock()
	t.waiting = true
	t.mu.Unlock()

	return <-t.input, nil
}

// Submit parses a typed line and hands it to a pending Read. Invalid lines
// are reported in the output and the prompt stays open.
func (t *terminal) Submit(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.waiting {
		return
	}
	fmt.Fprintf(&t.buf, "input: %s\n", line)
	v, err := cpu.ParseNumber(line)
	if err != nil {
		fmt.Fprintf(&t.buf, "%v\n", err)
		return
	}
	// waiting implies the buffer is empty, so the send never blocks
	t.input <- v
	t.waiting = false
}

// finish records how the run ended.
func (t *terminal) finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	if err != nil {
		t.status = err.Error()
	} else {
		t.status = "program finished"
	}
}

func (t *terminal) snapshot() (out string, waiting, done bool, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String(), t.waiting, t.done, t.status
}

// tail returns the last n lines of s, ignoring a trailing newline.
func tail(s string, n int) []string {
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

type Game struct {
	term *terminal
	line []rune // the number being typed

	canvas *image.RGBA // text is rasterized here, then uploaded to frame
	frame  *ebiten.Image
}

func newGame(term *terminal) *Game {
	return &Game{
		term:   term,
		canvas: image.NewRGBA(image.Rect(0, 0, screenWidth, screenHeight)),
	}
}

// render draws lines onto the canvas with the 7x13 bitmap face.
func (g *Game) render(lines []string) {
	draw.Draw(g.canvas, g.canvas.Bounds(), image.Black, image.Point{}, draw.Src)
	d := &font.Drawer{Dst: g.canvas, Src: image.White, Face: basicfont.Face7x13}
	ascent := basicfont.Face7x13.Metrics().Ascent.Ceil()
	for i, l := range lines {
		d.Dot = fixed.P(margin, margin+ascent+i*lineHeight)
		d.DrawString(l)
	}
}

func (g *Game) Update() error {
	_, waiting, _, _ := g.term.snapshot()
	if !waiting {
		g.line = g.line[:0]
		return nil
	}
	g.line = ebiten.AppendInputChars(g.line)
	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) && len(g.line) > 0 {
		g.line = g.line[:len(g.line)-1]
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) || inpututil.IsKeyJustPressed(ebiten.KeyNumpadEnter) {
		g.term.Submit(string(g.line))
		g.line = g.line[:0]
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	out, waiting, done, status := g.term.snapshot()

	rows := (screenHeight-2*margin)/lineHeight - 2
	lines := tail(out, rows)
	if waiting {
		lines = append(lines, "input: "+string(g.line)+"_")
	}
	g.render(lines)

	if g.frame == nil {
		g.frame = ebiten.NewImage(screenWidth, screenHeight)
	}
	g.frame.WritePixels(g.canvas.Pix)
	screen.DrawImage(g.frame, nil)

	if done {
		ebitenutil.DebugPrintAt(screen, "-- "+status, margin, screenHeight-margin-lineHeight)
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

func main() {
	cfg := config.Load()
	showAsm := flag.Bool("show-asm", cfg.ShowAsm, "print the generated assembly before running")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: desktop [-show-asm] <file.c>")
		os.Exit(2)
	}

	fullPath, baseDir, err := utils.GetPathInfo(flag.Arg(0))
	if err != nil {
		log.Fatalf("Bad path: %v", err)
	}
	sourceBytes, err := os.ReadFile(fullPath)
	if err != nil {
		log.Fatalf("Failed to read source file: %v", err)
	}
	asm, err := compiler.Compile(string(sourceBytes), compiler.WithBaseDir(baseDir))
	if err != nil {
		log.Fatalf("Compilation failed: %v", err)
	}
	if *showAsm {
		fmt.Print("Generated Assembly:\n", asm, "\n")
	}

	term := newTerminal()
	go func() {
		_, err := cpu.Run(asm,
			cpu.WithInput(term.Read),
			cpu.WithOutput(term),
			cpu.WithMemorySize(cfg.MemorySize),
			cpu.WithMaxSteps(cfg.MaxSteps),
		)
		term.finish(err)
	}()

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle("ccvm - " + flag.Arg(0))

	if err := ebiten.RunGame(newGame(term)); err != nil {
		log.Fatal(err)
	}
}
