package sandboxfs

import "github.com/agentserver/agentserver/internal/apierror"

// FindBestDriveLetter picks a virtual drive letter ('A'-'Z') to mount a
// sandbox base under, given a bitmask of letters already in use (bit 0
// = A, bit 25 = Z). It chooses the midpoint of the largest contiguous
// run of free letters, which tends to leave the most room for further
// mounts to grow on either side before colliding. It fails when every
// letter is taken.
//
// This is a Windows-only convenience for mounting a sandbox as its own
// drive rather than a subdirectory; on every other platform the
// sandbox is just a directory and this is never consulted.
func FindBestDriveLetter(used uint32) (byte, error) {
	bestStart, bestLen := -1, 0
	runStart, runLen := -1, 0

	for i := 0; i < 26; i++ {
		free := used&(1<<uint(i)) == 0
		if free {
			if runStart < 0 {
				runStart = i
			}
			runLen++
		} else {
			if runLen > bestLen {
				bestStart, bestLen = runStart, runLen
			}
			runStart, runLen = -1, 0
		}
	}
	if runLen > bestLen {
		bestStart, bestLen = runStart, runLen
	}

	if bestLen == 0 {
		return 0, apierror.New(apierror.KindInternal, "no free drive letters")
	}

	mid := bestStart + bestLen/2
	return byte('A' + mid), nil
}
