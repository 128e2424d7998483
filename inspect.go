package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-i2p/go-void/lib/packet"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	nameStyle  = lipgloss.NewStyle().Width(16).Foreground(lipgloss.Color("244"))
	offStyle   = lipgloss.NewStyle().Width(10).Foreground(lipgloss.Color("240"))
	padStyle   = lipgloss.NewStyle().Faint(true)
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	badStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// maxRawShown caps hex dumps of large fields.
const maxRawShown = 24

func newInspectCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "inspect [HEX]",
		Short: "Decode a record and print its fields",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := inspectInput(file, args)
			if err != nil {
				return err
			}
			tier, err := packet.ParseTier(tierFlag(cmd))
			if err != nil {
				return err
			}
			d, err := packet.NewCodec(tier).Dissect(buf)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderDissection(tier, d))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read a binary record from file")
	return cmd
}

func inspectInput(file string, args []string) ([]byte, error) {
	switch {
	case file != "":
		buf, err := os.ReadFile(file)
		if err != nil {
			return nil, oops.Errorf("failed to read record: %w", err)
		}
		return buf, nil
	case len(args) == 1:
		raw := strings.TrimSpace(args[0])
		if i := strings.LastIndex(raw, ":"); i >= 0 {
			raw = raw[i+1:]
		}
		buf, err := hex.DecodeString(raw)
		if err != nil {
			return nil, oops.Errorf("invalid hex record: %w", err)
		}
		return buf, nil
	}
	return nil, oops.Errorf("pass a hex record or --file")
}

func renderDissection(tier packet.Tier, d *packet.Dissection) string {
	var b strings.Builder
	h := d.Header
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s record (%s tier)", d.Kind, tier)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s v%d type=%d sec=%t apid=0x%03x flags=%d seq=%d len=%d\n",
		nameStyle.Render("header"), h.Version, h.Type, h.SecHeader, h.APID, h.SeqFlags, h.SeqCount, h.PacketLen)

	for _, f := range d.Fields {
		off := offStyle.Render(fmt.Sprintf("@%d+%d", f.Offset, f.Size))
		if f.IsPad() {
			b.WriteString(padStyle.Render(fmt.Sprintf("%-16s%-10s%s", f.Name, fmt.Sprintf("@%d+%d", f.Offset, f.Size), "padding")))
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(&b, "%s%s%s\n", nameStyle.Render(f.Name), off, formatValue(f))
	}

	if d.CRCValid != nil {
		status := okStyle.Render("ok")
		if !*d.CRCValid {
			status = badStyle.Render("MISMATCH")
		}
		fmt.Fprintf(&b, "%s%s\n", nameStyle.Render("checksum"), status)
	}
	return b.String()
}

func formatValue(f packet.FieldValue) string {
	switch f.Name {
	case packet.FieldPosVec:
		return formatFloats(f.Raw, 8)
	case packet.FieldVelVec:
		return formatFloats(f.Raw, 4)
	}
	switch f.Size {
	case 1:
		return fmt.Sprintf("%d (0x%02x)", f.Raw[0], f.Raw[0])
	case 2:
		v := binary.LittleEndian.Uint16(f.Raw)
		return fmt.Sprintf("%d (0x%04x)", v, v)
	case 4:
		v := binary.LittleEndian.Uint32(f.Raw)
		return fmt.Sprintf("%d (0x%08x)", v, v)
	case 8:
		v := binary.LittleEndian.Uint64(f.Raw)
		return fmt.Sprintf("%d (0x%016x)", v, v)
	}
	if len(f.Raw) > maxRawShown {
		return hex.EncodeToString(f.Raw[:maxRawShown]) + fmt.Sprintf("... (%d bytes)", len(f.Raw))
	}
	return hex.EncodeToString(f.Raw)
}

func formatFloats(raw []byte, width int) string {
	parts := make([]string, 0, len(raw)/width)
	for i := 0; i+width <= len(raw); i += width {
		var v float64
		if width == 8 {
			v = math.Float64frombits(binary.LittleEndian.Uint64(raw[i:]))
		} else {
			v = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i:])))
		}
		parts = append(parts, fmt.Sprintf("%g", v))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
