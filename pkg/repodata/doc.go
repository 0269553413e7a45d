// Copyright © 2018 One Concern

/*
Package repodata maintains conda channel index documents (repodata.json).

An index document holds up to two sections, "packages" for .tar.bz2 archives
and "packages.conda" for .conda archives, each mapping a package filename to
its metadata:

	{
	  "packages": {
	    "decorator-4.2.1-py27_0.tar.bz2": {"sha256": "...", "size": 15638, ...}
	  },
	  "packages.conda": {
	    "notebook-6.1.1-py38_0.conda": {"sha256": "...", ...}
	  }
	}

Merge and Remove edit such a document in a single streaming pass: the old
document is read token by token and the new one is written as it goes. Only
one package entry at a time is held in memory, whatever the size of the index.

Package metadata is copied node by node. Numbers keep their literal
representation and object keys keep their order. Formatting is a property of
the writer (see Indent and Compact), not preserved from the input.

Neither function closes the streams it is given.
*/
package repodata
