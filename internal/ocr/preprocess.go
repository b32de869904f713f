package ocr

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
)

// binarizeThreshold — порог перевода в черно-белое.
// Текст в игре светлый на темном фоне.
const binarizeThreshold = 185

// Preprocess готовит снимок области к распознаванию:
// увеличение в 2 раза и бинаризация. Мелкий внутриигровой шрифт
// tesseract без этого читает заметно хуже.
func Preprocess(img image.Image) image.Image {
	bounds := img.Bounds()
	upscaled := resize.Resize(uint(bounds.Dx()*2), 0, img, resize.NearestNeighbor)

	ub := upscaled.Bounds()
	out := image.NewGray(ub)
	for y := ub.Min.Y; y < ub.Max.Y; y++ {
		for x := ub.Min.X; x < ub.Max.X; x++ {
			gray := color.GrayModel.Convert(upscaled.At(x, y)).(color.Gray)
			if gray.Y >= binarizeThreshold {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}
