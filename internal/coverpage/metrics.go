package coverpage

// Helvetica advance widths in thousandths of an em for the printable
// ASCII range (0x20-0x7e), straight from the standard AFM metrics.
// They drive link-rectangle sizing and text truncation.
var helveticaWidths = [95]int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, // space ! " # $ % & ' ( )
	389, 584, 278, 333, 278, 278, 556, 556, 556, 556, // * + , - . / 0 1 2 3
	556, 556, 556, 556, 556, 556, 278, 278, 584, 584, // 4 5 6 7 8 9 : ; < =
	584, 556, 1015, 667, 667, 722, 722, 667, 611, 778, // > ? @ A B C D E F G
	722, 278, 500, 667, 556, 833, 722, 778, 667, 778, // H I J K L M N O P Q
	722, 667, 611, 722, 667, 944, 667, 667, 611, 278, // R S T U V W X Y Z [
	278, 278, 469, 556, 333, 556, 556, 500, 556, 556, // \ ] ^ _ ` a b c d e
	278, 556, 556, 222, 222, 500, 222, 833, 556, 556, // f g h i j k l m n o
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, // p q r s t u v w x y
	500, 334, 260, 334, 584, // z { | } ~
}

const defaultGlyphWidth = 556

// textWidth measures s at the given font size in points.
func textWidth(s string, size float64) float64 {
	total := 0
	for _, r := range s {
		if r >= 0x20 && r <= 0x7e {
			total += helveticaWidths[r-0x20]
		} else {
			total += defaultGlyphWidth
		}
	}
	return float64(total) * size / 1000
}

// truncateToWidth shortens s so it fits within max points at the given
// size, appending an ellipsis when anything was cut.
func truncateToWidth(s string, size, max float64) string {
	if textWidth(s, size) <= max {
		return s
	}
	const ellipsis = "..."
	budget := max - textWidth(ellipsis, size)
	var out []rune
	used := 0.0
	for _, r := range s {
		w := float64(defaultGlyphWidth)
		if r >= 0x20 && r <= 0x7e {
			w = float64(helveticaWidths[r-0x20])
		}
		w = w * size / 1000
		if used+w > budget {
			break
		}
		out = append(out, r)
		used += w
	}
	return string(out) + ellipsis
}

// escapeText prepares a string for a PDF literal string in a content
// stream: WinAnsi-compatible bytes with delimiters escaped. Runes
// outside Latin-1 degrade to a question mark.
func escapeText(s string) string {
	out := make([]byte, 0, len(s)+8)
	for _, r := range s {
		var c byte
		switch {
		case r <= 0xff:
			c = byte(r)
		default:
			c = '?'
		}
		switch c {
		case '(', ')', '\\':
			out = append(out, '\\', c)
		case '\n', '\r':
			out = append(out, ' ')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
