package camera

import (
	"io"

	"github.com/astrogo/fitsio"
)

// writeFits streams a single 16-bit fits image to w.  FITS has no unsigned
// 16-bit type, so the pixels are offset into int16 and BZERO undoes it
func writeFits(w io.Writer, metadata []fitsio.Card, pix [][]uint16, width, height int) error {
	metadata = append(metadata,
		fitsio.Card{Name: "BZERO", Value: 32768},
		fitsio.Card{Name: "BSCALE", Value: 1.0})
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(16, []int{width, height})
	defer im.Close()
	err = im.Header().Append(metadata...)
	if err != nil {
		return err
	}

	bufOut := make([]int16, 0, width*height)
	for _, row := range pix {
		for _, v := range row {
			bufOut = append(bufOut, int16(v-32768))
		}
	}
	err = im.Write(bufOut)
	if err != nil {
		return err
	}
	return fits.Write(im)
}
